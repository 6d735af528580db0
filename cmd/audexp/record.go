package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/BufaXiwang/AudioExpenseTracker/internal/analysis"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/capture"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/config"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/model"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/recognizer"
	"github.com/BufaXiwang/AudioExpenseTracker/internal/workflow"
)

func recordCmd() *cobra.Command {
	var mockTranscript string

	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a voice note and turn it into expenses",
		Long: `Record from the default microphone, transcribe the note, extract one or
more expenses, and confirm them interactively before saving.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			cfg, err := config.Load()
			if err != nil {
				return err
			}

			store, err := initStorage(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			var rec recognizer.Recognizer
			var engine capture.Engine
			if mockTranscript != "" {
				rec = &recognizer.MockRecognizer{FinalText: mockTranscript}
				engine = capture.NullEngine{}
			} else {
				rec, err = recognizer.NewExecRecognizer(recognizer.ExecConfig{
					Command:         cfg.Recognizer.Command,
					ModelPath:       cfg.Recognizer.ModelPath,
					Language:        cfg.Recognizer.Language,
					PartialInterval: cfg.Recognizer.PartialInterval,
					SampleRate:      cfg.Capture.SampleRate,
				}, slog.Default())
				if err != nil {
					return err
				}
				engine = capture.NewPortAudioEngine(cfg.Capture.SampleRate, 0)
			}
			session := capture.NewSession(engine, rec, capture.StaticPermissions{
				Microphone: cfg.Permissions.Microphone,
				Speech:     cfg.Permissions.Speech,
			}, capture.Config{
				SaveAudioDir: cfg.Capture.SaveAudioDir,
				SampleRate:   cfg.Capture.SampleRate,
				StopGrace:    cfg.Capture.StopGrace,
			}, slog.Default())

			analyzer := analysis.NewClient(analysis.Config{
				BaseURL:     cfg.Analysis.BaseURL,
				APIKey:      cfg.Analysis.APIKey,
				Model:       cfg.Analysis.Model,
				MaxRetries:  cfg.Analysis.MaxRetries,
				MaxTokens:   cfg.Analysis.MaxTokens,
				Temperature: cfg.Analysis.Temperature,
				Timeout:     cfg.Analysis.Timeout,
			}, slog.Default())

			w := workflow.New(session, analyzer, store, userPreferences(cfg), slog.Default())
			go w.Run(ctx)

			return runRecordingFlow(ctx, w)
		},
	}

	cmd.Flags().StringVar(&mockTranscript, "mock", "", "skip the microphone and use this transcript (for trying the flow)")
	return cmd
}

// runRecordingFlow drives one recording through confirmation on the
// terminal.
func runRecordingFlow(ctx context.Context, w *workflow.Workflow) error {
	input := bufio.NewScanner(os.Stdin)

	fmt.Println("按回车开始录音...")
	if !input.Scan() {
		return nil
	}
	w.StartRecording(ctx)

	fmt.Println("录音中，说出一笔或多笔支出，再按回车结束。")
	stopped := make(chan struct{})
	go func() {
		input.Scan()
		w.StopRecording()
		close(stopped)
	}()

	lastLabel := ""
	for {
		select {
		case <-ctx.Done():
			w.Cancel()
			return nil
		case state := <-w.Updates():
			switch state.Step {
			case model.StepRecording:
				if state.Transcript != "" {
					fmt.Printf("\r%s", state.Transcript)
				}
			case model.StepProcessing, model.StepAnalyzing:
				if state.ProgressLabel != "" && state.ProgressLabel != lastLabel {
					lastLabel = state.ProgressLabel
					fmt.Printf("\n%s...\n", state.ProgressLabel)
				}
			case model.StepConfirmingExpense:
				<-stopped
				return confirmSingle(ctx, w, input, state.Candidates)
			case model.StepSelectingMultipleExpenses:
				<-stopped
				return confirmMultiple(ctx, w, input, state.Candidates)
			case model.StepError:
				fmt.Printf("\n%s\n", state.ErrorMessage)
				return nil
			case model.StepIdle:
				fmt.Println("\n没有听到内容，已取消。")
				return nil
			}
		}
	}
}

func confirmSingle(ctx context.Context, w *workflow.Workflow, input *bufio.Scanner, candidates []model.ExpenseCandidate) error {
	if len(candidates) == 0 {
		return nil
	}
	c := candidates[0]
	fmt.Println("\n识别到一笔支出：")
	printCandidate(1, c)
	fmt.Print("保存这笔支出？(y/n) ")
	if !input.Scan() || !isYes(input.Text()) {
		w.Cancel()
		fmt.Println("已取消。")
		return nil
	}
	w.Confirm(ctx, c)
	return reportOutcome(w)
}

func confirmMultiple(ctx context.Context, w *workflow.Workflow, input *bufio.Scanner, candidates []model.ExpenseCandidate) error {
	fmt.Printf("\n识别到 %d 笔支出：\n", len(candidates))
	for i, c := range candidates {
		printCandidate(i+1, c)
	}
	fmt.Print("输入要保存的编号（空格分隔），a 保存全部，n 取消：")
	if !input.Scan() {
		w.Cancel()
		return nil
	}
	answer := strings.TrimSpace(input.Text())
	switch {
	case answer == "" || answer == "n":
		w.Cancel()
		fmt.Println("已取消。")
		return nil
	case answer == "a" || isYes(answer):
		w.ConfirmMultiple(ctx, candidates)
	default:
		var selected []model.ExpenseCandidate
		for _, field := range strings.Fields(answer) {
			idx, err := strconv.Atoi(field)
			if err != nil || idx < 1 || idx > len(candidates) {
				fmt.Printf("忽略无效编号 %q\n", field)
				continue
			}
			selected = append(selected, candidates[idx-1])
		}
		if len(selected) == 0 {
			w.Cancel()
			fmt.Println("已取消。")
			return nil
		}
		w.ConfirmMultiple(ctx, selected)
	}
	return reportOutcome(w)
}

func reportOutcome(w *workflow.Workflow) error {
	state := w.Snapshot()
	if state.Step == model.StepError {
		fmt.Println(state.ErrorMessage)
		return nil
	}
	fmt.Println("已保存。")
	return nil
}

func printCandidate(index int, c model.ExpenseCandidate) {
	fmt.Printf("  %d. %s 元  %s（%s）  %s\n",
		index, c.Amount.StringFixed(2), c.Title, c.Category.Label(), c.Date.Format("2006-01-02"))
}

func isYes(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "y", "yes", "是":
		return true
	}
	return false
}
