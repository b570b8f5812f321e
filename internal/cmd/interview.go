package cmd

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"strconv"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"symptomcheck/internal/config"
	"symptomcheck/internal/engine"
	"symptomcheck/internal/model"
	"symptomcheck/internal/policy"
	"symptomcheck/internal/service"
)

// OptionSource fills in the options of generated choice questions
type OptionSource interface {
	GenerateOptions(ctx context.Context, question *model.Question, responses []model.QuestionResponse, locale string) ([]model.Option, error)
}

// NewInterviewCommand creates the 'symptomcheck interview' command
func NewInterviewCommand() *cobra.Command {
	var (
		seed       string
		policyFile string
		locale     string
		noColor    bool
		verbose    bool
	)

	cmd := &cobra.Command{
		Use:   "interview",
		Short: "Run an interview in the terminal",
		Long: `Run an adaptive symptom interview in the terminal.

Answer each question on its own line. Choice questions take the option
number or value; multiple choice takes a comma separated list.

Commands:
  :back      go back to the previous question
  :retry     recover after a failed question
  :restart   start over with the same seed
  :quit      leave the interview`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !verbose {
				log.SetOutput(io.Discard)
			}
			if noColor || !isTerminal(cmd.OutOrStdout()) {
				color.NoColor = true
			}

			rules, err := config.LoadPolicy(policyFile)
			if err != nil {
				return fmt.Errorf("load policy: %w", err)
			}
			gen := service.NewGeneratorService(config.DefaultAIConfig(), rules)

			iv := newInterviewer(cmd.InOrStdin(), cmd.OutOrStdout(), gen)
			return iv.run(cmd.Context(), gen, rules, locale, seed)
		},
	}

	cmd.Flags().StringVar(&seed, "seed", "", "initial description of the main concern")
	cmd.Flags().StringVar(&policyFile, "policy", "", "YAML policy file (built-in rules when empty)")
	cmd.Flags().StringVar(&locale, "locale", "en", "question locale")
	cmd.Flags().BoolVar(&noColor, "no-color", false, "disable colored output")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "show engine logs")

	return cmd
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()))
}

var errQuit = errors.New("quit")

type interviewer struct {
	in      *bufio.Scanner
	out     io.Writer
	options OptionSource
	locale  string

	// options shown for the current generated question, keyed by question id
	shown map[string][]model.Option

	cyan   *color.Color
	bold   *color.Color
	green  *color.Color
	yellow *color.Color
	red    *color.Color
	gray   *color.Color
}

func newInterviewer(in io.Reader, out io.Writer, options OptionSource) *interviewer {
	return &interviewer{
		in:      bufio.NewScanner(in),
		out:     out,
		options: options,
		shown:   make(map[string][]model.Option),
		cyan:    color.New(color.FgCyan, color.Bold),
		bold:    color.New(color.Bold),
		green:   color.New(color.FgGreen),
		yellow:  color.New(color.FgYellow),
		red:     color.New(color.FgRed, color.Bold),
		gray:    color.New(color.FgHiBlack),
	}
}

// run drives one engine until the interview ends or input runs out
func (iv *interviewer) run(ctx context.Context, gen engine.Generator, rules policy.Rules, locale, seed string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	eng, err := engine.New(gen, engine.Config{Rules: rules, Locale: locale})
	if err != nil {
		return err
	}
	defer eng.Close()
	iv.locale = eng.Locale()

	iv.cyan.Fprintln(iv.out, "Symptom check")
	iv.gray.Fprintln(iv.out, "Type :back, :retry, :restart or :quit at any prompt.")

	if err := eng.Start(ctx, seed); err != nil && !failureShown(err) {
		return err
	}

	for {
		snap := eng.Snapshot()
		switch snap.State {
		case model.StateCompleted:
			iv.summary(snap)
			return nil
		case model.StateEmergency:
			iv.emergency()
			return nil
		case model.StateError:
			iv.red.Fprintf(iv.out, "\n%s\n", snap.Error.Message)
			iv.gray.Fprintln(iv.out, "Type :retry to try again or :restart to start over.")
		case model.StateQuestioning:
			iv.ask(ctx, snap)
		}

		line, ok := iv.readLine()
		if !ok {
			return nil
		}

		err := iv.handle(ctx, eng, snap, line)
		if errors.Is(err, errQuit) {
			iv.gray.Fprintln(iv.out, "Interview ended.")
			return nil
		}
		if err != nil && !failureShown(err) {
			iv.yellow.Fprintf(iv.out, "%s\n", userMessage(err))
		}
	}
}

func (iv *interviewer) handle(ctx context.Context, eng *engine.Engine, snap model.Snapshot, line string) error {
	switch line {
	case ":quit", ":q":
		return errQuit
	case ":back":
		return eng.GoBack()
	case ":restart":
		iv.shown = make(map[string][]model.Option)
		return eng.Restart(ctx)
	case ":retry":
		retracted, err := eng.Retry(ctx)
		if err == nil && retracted != nil {
			iv.gray.Fprintf(iv.out, "Your previous answer was: %s\n", retracted.Answer.String())
		}
		return err
	}

	if snap.State != model.StateQuestioning || snap.CurrentQuestion == nil {
		return engine.ErrInvalidState
	}
	q := snap.CurrentQuestion
	answer, err := parseAnswer(q, iv.shown[q.ID], line)
	if err != nil {
		return err
	}
	return eng.SubmitAnswer(ctx, model.QuestionResponse{QuestionID: q.ID, Answer: answer})
}

func (iv *interviewer) ask(ctx context.Context, snap model.Snapshot) {
	q := snap.CurrentQuestion
	if q == nil {
		return
	}

	fmt.Fprintln(iv.out)
	iv.gray.Fprintf(iv.out, "Question %d\n", snap.QuestionNumber)
	iv.bold.Fprintln(iv.out, q.Text)

	opts := q.Options
	if q.Kind == model.KindGeneratedSingleChoice || q.Kind == model.KindGeneratedMultipleChoice {
		opts = iv.shown[q.ID]
		if opts == nil {
			generated, err := iv.options.GenerateOptions(ctx, q, snap.Responses, iv.locale)
			if err != nil {
				iv.yellow.Fprintf(iv.out, "Could not load options (%v), answer in your own words.\n", err)
			}
			opts = generated
			iv.shown[q.ID] = generated
		}
	}
	for i, o := range opts {
		fmt.Fprintf(iv.out, "  %s %s\n", iv.cyan.Sprintf("%d.", i+1), o.Label)
	}

	switch q.Kind {
	case model.KindBoolean:
		iv.gray.Fprintln(iv.out, "(yes/no)")
	case model.KindMultipleChoice, model.KindGeneratedMultipleChoice:
		iv.gray.Fprintln(iv.out, "(one or more, separated by commas)")
	case model.KindScale, model.KindNumberInput:
		if q.Min != nil && q.Max != nil {
			iv.gray.Fprintf(iv.out, "(%g-%g)\n", *q.Min, *q.Max)
		}
	}
	if snap.CanGoBack {
		iv.gray.Fprintln(iv.out, ":back to change your last answer")
	}
}

func (iv *interviewer) summary(snap model.Snapshot) {
	fmt.Fprintln(iv.out)
	iv.green.Fprintln(iv.out, "Thank you, your assessment is complete.")
	for i, r := range snap.Responses {
		text := r.QuestionID
		if i < len(snap.History) {
			text = snap.History[i].Text
		}
		fmt.Fprintf(iv.out, "  %s %s\n", iv.gray.Sprint(text), r.Answer.String())
	}
}

func (iv *interviewer) emergency() {
	fmt.Fprintln(iv.out)
	iv.red.Fprintln(iv.out, "Your answers suggest you may need urgent care.")
	iv.red.Fprintln(iv.out, "Call your local emergency number or go to the nearest emergency department now.")
}

func (iv *interviewer) readLine() (string, bool) {
	fmt.Fprint(iv.out, iv.cyan.Sprint("> "))
	if !iv.in.Scan() {
		return "", false
	}
	return strings.TrimSpace(iv.in.Text()), true
}

// parseAnswer turns a typed line into an answer for q. Choice questions
// accept the 1-based option number or the option value.
func parseAnswer(q *model.Question, generated []model.Option, line string) (model.Answer, error) {
	opts := q.Options
	if len(opts) == 0 {
		opts = generated
	}

	switch q.Kind {
	case model.KindSingleChoice:
		v, err := pickOption(opts, line)
		if err != nil {
			return model.Answer{}, err
		}
		return model.TextAnswer(v), nil
	case model.KindGeneratedSingleChoice:
		if v, err := pickOption(opts, line); err == nil {
			return model.TextAnswer(v), nil
		}
		return model.TextAnswer(line), nil
	case model.KindMultipleChoice, model.KindGeneratedMultipleChoice:
		var values []string
		for _, part := range strings.Split(line, ",") {
			part = strings.TrimSpace(part)
			if part == "" {
				continue
			}
			v, err := pickOption(opts, part)
			if err != nil {
				if q.Kind == model.KindGeneratedMultipleChoice && len(opts) == 0 {
					v = part
				} else {
					return model.Answer{}, err
				}
			}
			values = append(values, v)
		}
		if len(values) == 0 {
			return model.Answer{}, fmt.Errorf("%w: pick at least one option", engine.ErrInvalidAnswer)
		}
		return model.ListAnswer(values...), nil
	case model.KindBoolean:
		switch strings.ToLower(line) {
		case "y", "yes", "true":
			return model.BoolAnswer(true), nil
		case "n", "no", "false":
			return model.BoolAnswer(false), nil
		}
		return model.Answer{}, fmt.Errorf("%w: answer yes or no", engine.ErrInvalidAnswer)
	case model.KindNumberInput, model.KindScale:
		n, err := strconv.ParseFloat(line, 64)
		if err != nil {
			return model.Answer{}, fmt.Errorf("%w: enter a number", engine.ErrInvalidAnswer)
		}
		return model.NumberAnswer(n), nil
	}
	return model.TextAnswer(line), nil
}

func pickOption(opts []model.Option, s string) (string, error) {
	if n, err := strconv.Atoi(s); err == nil && n >= 1 && n <= len(opts) {
		return opts[n-1].Value, nil
	}
	for _, o := range opts {
		if strings.EqualFold(o.Value, s) || strings.EqualFold(o.Label, s) {
			return o.Value, nil
		}
	}
	return "", fmt.Errorf("%w: %q is not one of the options", engine.ErrInvalidAnswer, s)
}

// failureShown reports whether err put the engine in the error state, which
// the render loop already displays
func failureShown(err error) bool {
	switch engine.KindOf(err) {
	case engine.KindStartupFailure, engine.KindGenerationFailure:
		return true
	}
	return false
}

func userMessage(err error) string {
	switch {
	case errors.Is(err, engine.ErrCannotGoBack):
		return "This is the first question."
	case errors.Is(err, engine.ErrInvalidState):
		return "That is not possible right now."
	case errors.Is(err, engine.ErrInvalidAnswer):
		return err.Error()
	}
	return fmt.Sprintf("Something went wrong: %v", err)
}
