package main

import (
	"fmt"
	"io"
	"os/exec"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/vango-go/vai-converse/pkg/config"
)

func NewDoctorCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "doctor",
		Short: "Check prerequisites for voice conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !runDoctor(cmd.OutOrStdout(), deps.Config, exec.LookPath) {
				color.New(color.FgYellow).Fprintln(cmd.OutOrStdout(), "\nSome prerequisites are missing; text chat still works.")
				return nil
			}
			color.New(color.FgGreen).Fprintln(cmd.OutOrStdout(), "\nAll prerequisites met.")
			return nil
		},
	}
}

type check struct {
	name   string
	ok     bool
	detail string
}

func doctorChecks(cfg config.Config, lookPath func(string) (string, error)) []check {
	var checks []check
	for _, bin := range []string{"ffmpeg", "ffplay"} {
		if _, err := lookPath(bin); err != nil {
			checks = append(checks, check{bin, false, "not found. Install ffmpeg and ensure it is in PATH"})
		} else {
			checks = append(checks, check{bin, true, "installed"})
		}
	}

	if cfg.SpeechInputAvailable() {
		checks = append(checks, check{"Speech input", true, "Cartesia key configured"})
	} else {
		checks = append(checks, check{"Speech input", false, "not set. Set CARTESIA_API_KEY or speech.cartesia_api_key"})
	}

	switch {
	case cfg.Speech.TTSProvider == config.TTSNone:
		checks = append(checks, check{"Speech output", true, "disabled by config"})
	case cfg.SpeechOutputAvailable():
		checks = append(checks, check{"Speech output", true, string(cfg.Speech.TTSProvider) + " key configured"})
	default:
		checks = append(checks, check{"Speech output", false, "no key for " + string(cfg.Speech.TTSProvider)})
	}

	checks = append(checks, check{"Server", true, cfg.Server.BaseURL})
	return checks
}

func runDoctor(w io.Writer, cfg config.Config, lookPath func(string) (string, error)) bool {
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	ok := true
	for _, c := range doctorChecks(cfg, lookPath) {
		if c.ok {
			green.Fprint(w, "✓ ")
		} else {
			red.Fprint(w, "✗ ")
			ok = false
		}
		fmt.Fprintf(w, "%s: %s\n", c.name, c.detail)
	}
	return ok
}
