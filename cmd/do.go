package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/mj1618/voxnav/internal/engine"
	"github.com/mj1618/voxnav/internal/matcher"
	"github.com/mj1618/voxnav/internal/model"
	"github.com/mj1618/voxnav/internal/output"
	"github.com/mj1618/voxnav/internal/platform"
	"github.com/mj1618/voxnav/internal/registry"
	"github.com/mj1618/voxnav/internal/resolver"
	"github.com/mj1618/voxnav/internal/server"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// DoResult is the output of a batch do command.
type DoResult struct {
	OK        bool                   `yaml:"ok"                json:"ok"`
	Action    string                 `yaml:"action"            json:"action"`
	Steps     int                    `yaml:"steps"             json:"steps"`
	Completed int                    `yaml:"completed"         json:"completed"`
	Error     string                 `yaml:"error,omitempty"   json:"error,omitempty"`
	Results   []StepResult           `yaml:"results"           json:"results"`
	Executed  []model.ResolvedAction `yaml:"executed,omitempty" json:"executed,omitempty"`
}

// StepResult is the output for a single step within a batch.
type StepResult struct {
	Step    int                   `yaml:"step"              json:"step"`
	OK      bool                  `yaml:"ok"                json:"ok"`
	Action  string                `yaml:"action"            json:"action"`
	Error   string                `yaml:"error,omitempty"   json:"error,omitempty"`
	Kind    string                `yaml:"kind,omitempty"    json:"kind,omitempty"`
	Text    string                `yaml:"text,omitempty"    json:"text,omitempty"`
	Match   *matcher.MatchResult  `yaml:"match,omitempty"   json:"match,omitempty"`
	Intent  string                `yaml:"intent,omitempty"  json:"intent,omitempty"`
	Target  *model.ResolvedAction `yaml:"target,omitempty"  json:"target,omitempty"`
	Screen  string                `yaml:"screen,omitempty"  json:"screen,omitempty"`
	Count   int                   `yaml:"count,omitempty"   json:"count,omitempty"`
	Elapsed string                `yaml:"elapsed,omitempty" json:"elapsed,omitempty"`
}

var doCmd = &cobra.Command{
	Use:   "do",
	Short: "Run a scripted voice session from a YAML list on stdin",
	Long: `Execute a sequence of steps from a YAML list on stdin within one session, so
later commands resolve against snapshots ingested by earlier steps.

Each step is a step name with its parameters as a map. Steps execute
sequentially, and by default execution stops on the first error.

Supported step types: ingest, say, resolve, match, learn, act, sleep

Example:
  voxnav do <<'EOF'
  - ingest: { file: "inbox.yaml" }
  - say: { text: "tap setings", confidence: 0.9 }
  - ingest: { file: "settings.yaml" }
  - say: { text: "go back" }
  - resolve: { text: "press the second button" }
  - act: { action: long-click, target: "<element id>" }
  EOF`,
	Args: cobra.NoArgs,
	RunE: runDo,
}

func init() {
	rootCmd.AddCommand(doCmd)
	doCmd.Flags().String("locale", "", "Default recognizer locale for all steps")
	doCmd.Flags().Bool("stop-on-error", true, "Stop execution on first error (default: true)")
}

func runDo(cmd *cobra.Command, args []string) error {
	defaultLocale, _ := cmd.Flags().GetString("locale")
	stopOnError, _ := cmd.Flags().GetBool("stop-on-error")

	data, err := io.ReadAll(cmd.InOrStdin())
	if err != nil {
		return fmt.Errorf("failed to read stdin: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("no steps provided on stdin; pipe a YAML list of steps")
	}

	var rawSteps []map[string]map[string]interface{}
	if err := yaml.Unmarshal(data, &rawSteps); err != nil {
		return fmt.Errorf("failed to parse YAML steps: %w", err)
	}
	if len(rawSteps) == 0 {
		return fmt.Errorf("no steps provided; expected a YAML list of steps")
	}

	exec := platform.NewLogExecutor(logger)
	s, err := openSession(cmd.Context(), exec)
	if err != nil {
		return err
	}
	defer s.Close()

	results := make([]StepResult, 0, len(rawSteps))
	completed := 0
	var lastErr string

	for i, step := range rawSteps {
		stepNum := i + 1
		if len(step) != 1 {
			errMsg := fmt.Sprintf("step %d: expected exactly one step key, got %d", stepNum, len(step))
			results = append(results, StepResult{Step: stepNum, Error: errMsg})
			lastErr = errMsg
			if stopOnError {
				break
			}
			continue
		}

		for action, params := range step {
			result, err := s.executeStep(cmd.Context(), action, params, defaultLocale)
			result.Step = stepNum
			result.Action = action
			if err != nil {
				result.Error = err.Error()
				result.Kind = server.ErrorResult(err).Kind
				lastErr = fmt.Sprintf("step %d: %s", stepNum, err.Error())
			} else {
				result.OK = true
				completed++
			}
			results = append(results, result)
		}
		if lastErr != "" && stopOnError {
			break
		}
	}

	return output.Print(DoResult{
		OK:        completed == len(rawSteps),
		Action:    "do",
		Steps:     len(rawSteps),
		Completed: completed,
		Error:     lastErr,
		Results:   results,
		Executed:  exec.History(),
	})
}

func (s *session) executeStep(ctx context.Context, action string, params map[string]interface{}, locale string) (StepResult, error) {
	locale = stringParam(params, "locale", locale)
	switch action {
	case "ingest":
		return s.stepIngest(ctx, params)
	case "say":
		return s.stepSay(ctx, params, locale)
	case "resolve":
		return s.stepResolve(ctx, params, locale)
	case "match":
		text := stringParam(params, "text", "")
		if text == "" {
			return StepResult{}, errors.New("match: text is required")
		}
		m := s.match.Match(ctx, text, locale)
		return StepResult{Text: text, Match: &m}, nil
	case "learn":
		original := stringParam(params, "original", "")
		corrected := stringParam(params, "corrected", "")
		if original == "" || corrected == "" {
			return StepResult{}, errors.New("learn: original and corrected are required")
		}
		err := s.match.Learn(ctx, original, corrected, floatParam(params, "confidence", 1))
		return StepResult{Text: corrected}, err
	case "act":
		return s.stepAct(ctx, params)
	case "sleep":
		ms := intParam(params, "ms", 0)
		select {
		case <-time.After(time.Duration(ms) * time.Millisecond):
		case <-ctx.Done():
			return StepResult{}, ctx.Err()
		}
		return StepResult{Elapsed: fmt.Sprintf("%dms", ms)}, nil
	default:
		return StepResult{}, fmt.Errorf("unknown step type %q; supported: ingest, say, resolve, match, learn, act, sleep", action)
	}
}

func (s *session) stepIngest(ctx context.Context, params map[string]interface{}) (StepResult, error) {
	file := stringParam(params, "file", "")
	if file == "" {
		return StepResult{}, errors.New("ingest: file is required")
	}
	results, err := s.ingestFiles(ctx, []string{file})
	if err != nil {
		return StepResult{}, err
	}
	if len(results) == 0 {
		return StepResult{}, fmt.Errorf("ingest: %s holds no batches", file)
	}
	last := results[len(results)-1]
	return StepResult{Text: last.Container, Screen: last.Screen.Fingerprint, Count: last.Elements}, nil
}

func (s *session) stepSay(ctx context.Context, params map[string]interface{}, locale string) (StepResult, error) {
	text := stringParam(params, "text", "")
	if text == "" {
		return StepResult{}, errors.New("say: text is required")
	}
	start := time.Now()
	o, err := s.eng.Do(ctx, engine.Command{
		Text:       text,
		Locale:     locale,
		Confidence: floatParam(params, "confidence", 1),
	})
	res := StepResult{Text: text, Match: &o.Match, Elapsed: time.Since(start).Round(time.Microsecond).String()}
	if err != nil {
		return res, err
	}
	res.Intent = o.Intent.String()
	res.Target = &o.Action
	return res, nil
}

func (s *session) stepResolve(ctx context.Context, params map[string]interface{}, locale string) (StepResult, error) {
	text := stringParam(params, "text", "")
	if text == "" {
		return StepResult{}, errors.New("resolve: text is required")
	}
	m := s.match.Match(ctx, text, locale)
	res := StepResult{Text: text, Match: &m}
	intent, err := resolver.ParseCommand(m.Text)
	if err != nil {
		return res, err
	}
	res.Intent = intent.String()
	action, err := s.eng.Resolver().ResolveAction(ctx, intent)
	if err != nil {
		return res, err
	}
	res.Target = &action
	return res, nil
}

// stepAct performs an action on a known element without going through the
// matcher or resolver.
func (s *session) stepAct(ctx context.Context, params map[string]interface{}) (StepResult, error) {
	kind, err := platform.ParseAction(stringParam(params, "action", "click"))
	if err != nil {
		return StepResult{}, err
	}
	target := stringParam(params, "target", "")
	if _, ok, err := s.reg.Get(ctx, target); !ok {
		if err != nil {
			return StepResult{}, err
		}
		return StepResult{}, fmt.Errorf("act: %w: %q", registry.ErrUnknownIdentity, target)
	}
	action := model.ResolvedAction{Action: kind, TargetIdentity: target}
	if s.exec != nil {
		if err := s.exec.Execute(ctx, action); err != nil {
			return StepResult{Target: &action}, err
		}
	}
	if err := s.reg.Touch(ctx, target); err != nil && !errors.Is(err, registry.ErrRegistryUnavailable) {
		return StepResult{Target: &action}, err
	}
	return StepResult{Target: &action}, nil
}
