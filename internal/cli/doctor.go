// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

// doctor.go - Health checks for the configuration and the endpoint.
//
// Command: doctor
// Aliases: diag
//
// Examples:
//   dxchat doctor                Run all checks
//   dxchat doctor --json         Results as JSON
//
// Checks:
//   1. Config Valid        - The config file (if any) loads and validates
//   2. Endpoint Reachable  - The inference endpoint answers
//   3. Model Available     - The configured model is installed
//   4. Config Directory    - History and config can be written
//   5. Bridge Address      - The HTTP bridge address is free
//
// Exit Codes:
//   0   No check failed
//   3   The config file is invalid
//   5   The endpoint is unreachable
//   1   Any other failure

package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/samber/lo"

	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/config"
	"github.com/DevExpress-Live/dx-ai-chat-ollama/internal/ollama"
)

// DoctorTimeout bounds each network check.
const DoctorTimeout = 5 * time.Second

// =============================================================================
// HEALTH CHECK TYPES
// =============================================================================

// CheckStatus represents the status of a health check.
type CheckStatus int

const (
	CheckPass CheckStatus = iota
	CheckWarn
	CheckFail
)

// String returns the status name used in JSON output.
func (s CheckStatus) String() string {
	switch s {
	case CheckPass:
		return "pass"
	case CheckWarn:
		return "warn"
	default:
		return "fail"
	}
}

// HealthCheck is the result of one check.
type HealthCheck struct {
	Name    string
	Status  CheckStatus
	Message string
	Fix     string // suggested command or instruction

	// Err is the underlying failure, used to pick the exit code
	Err error
}

// Render formats the check for the terminal.
func (c *HealthCheck) Render() string {
	line := fmt.Sprintf("%s %s", RenderStatus(c.Status.String()), ValueStyle.Render(c.Message))
	if c.Status != CheckPass && c.Fix != "" {
		line += "\n    " + DimStyle.Render("-> "+c.Fix)
	}
	return line
}

// doctorReport collects the checks and the models seen along the way.
type doctorReport struct {
	checks []*HealthCheck
	models []ollama.ModelInfo
}

// =============================================================================
// DOCTOR HANDLER
// =============================================================================

// HandleDoctor runs every check and prints the results to stdout.
func HandleDoctor(ctx context.Context, args Args) error {
	return RunDoctor(ctx, args, os.Stdout)
}

// RunDoctor runs every check against the configuration named by args and
// writes the results to out. It returns an error when any check failed.
func RunDoctor(ctx context.Context, args Args, out io.Writer) error {
	report := runAllChecks(ctx, args)

	passed := lo.CountBy(report.checks, func(c *HealthCheck) bool { return c.Status == CheckPass })
	warned := lo.CountBy(report.checks, func(c *HealthCheck) bool { return c.Status == CheckWarn })
	failed := lo.Filter(report.checks, func(c *HealthCheck, _ int) bool { return c.Status == CheckFail })

	var result error
	if len(failed) > 0 {
		result = NewCommandError("doctor", "check",
			fmt.Sprintf("%d health check(s) failed", len(failed)), failed[0].Err)
	}

	if args.JSON {
		data := DoctorData{
			Checks: lo.Map(report.checks, func(c *HealthCheck, _ int) DoctorCheck {
				return DoctorCheck{Name: c.Name, Status: c.Status.String(), Message: c.Message, Fix: c.Fix}
			}),
			Models: lo.Map(report.models, func(m ollama.ModelInfo, _ int) DoctorModel {
				return DoctorModel{Name: m.Name, Size: m.FormatSize(), Modified: modifiedAgo(m.ModifiedAt)}
			}),
			Summary: DoctorSummary{Passed: passed, Warned: warned, Failed: len(failed), Healthy: len(failed) == 0},
		}
		if err := NewJSONResponse("doctor", data).Write(out); err != nil {
			return err
		}
		return result
	}

	fmt.Fprintln(out, TitleStyle.Render("dxchat doctor"))
	fmt.Fprintln(out, RenderSeparator(41))
	for _, c := range report.checks {
		fmt.Fprintln(out, c.Render())
	}

	if len(report.models) > 0 && !args.Quiet {
		fmt.Fprintln(out, SectionStyle.Render("Installed models"))
		for _, m := range report.models {
			fmt.Fprintf(out, "  %s%s  %s\n", RenderLabel(m.Name, 32), ValueStyle.Render(m.FormatSize()), DimStyle.Render(modifiedAgo(m.ModifiedAt)))
		}
	}

	fmt.Fprintln(out)
	summary := []string{fmt.Sprintf("%d passed", passed)}
	if warned > 0 {
		summary = append(summary, WarningStyle.Render(fmt.Sprintf("%d warning", warned)))
	}
	if len(failed) > 0 {
		summary = append(summary, ErrorStyle.Render(fmt.Sprintf("%d failed", len(failed))))
	}
	fmt.Fprintln(out, DimStyle.Render(strings.Join(summary, ", ")))

	return result
}

// runAllChecks runs the checks in order. A config that fails to load is
// reported and the remaining checks use the built-in defaults.
func runAllChecks(ctx context.Context, args Args) *doctorReport {
	report := &doctorReport{}

	cfg, check := checkConfigValid(args)
	report.checks = append(report.checks, check)

	client, err := NewClient(cfg, log.New(io.Discard, "", 0))
	if err != nil {
		client = ollama.NewClientWithConfig(&ollama.ClientConfig{BaseURL: cfg.Endpoint.URL, Model: cfg.Endpoint.Model})
	}

	running := checkEndpointReachable(ctx, client, cfg)
	report.checks = append(report.checks, running)

	if running.Status == CheckPass {
		check, models := checkModelAvailable(ctx, client, cfg.Endpoint.Model)
		report.checks = append(report.checks, check)
		report.models = models
	}

	report.checks = append(report.checks, checkConfigDir(), checkBridgeAddr(cfg))
	return report
}

// =============================================================================
// INDIVIDUAL CHECKS
// =============================================================================

func checkConfigValid(args Args) (*config.Config, *HealthCheck) {
	check := &HealthCheck{Name: "Config Valid"}

	cfg, path, err := LoadConfig(args.ConfigPath)
	if err == nil {
		err = ApplyOverrides(cfg, args)
	}
	if err != nil {
		check.Status = CheckFail
		check.Message = err.Error()
		check.Fix = "Fix the file or run: dxchat config init --force"
		check.Err = err
		return config.Default(), check
	}

	check.Status = CheckPass
	if path == "" {
		check.Message = "No config file, using built-in defaults"
	} else {
		check.Message = "Config file is valid: " + path
	}
	return cfg, check
}

func checkEndpointReachable(ctx context.Context, client *ollama.Client, cfg *config.Config) *HealthCheck {
	check := &HealthCheck{Name: "Endpoint Reachable"}

	ctx, cancel := context.WithTimeout(ctx, DoctorTimeout)
	defer cancel()

	if err := client.CheckRunning(ctx); err != nil {
		check.Status = CheckFail
		check.Message = fmt.Sprintf("AI server not reachable at %s: %v", cfg.Endpoint.URL, err)
		check.Fix = "Start it with: ollama serve"
		check.Err = err
		return check
	}

	check.Status = CheckPass
	check.Message = "AI server is running at " + cfg.Endpoint.URL
	return check
}

// checkModelAvailable reports whether name, with or without a tag, is
// installed, and returns the installed models.
func checkModelAvailable(ctx context.Context, client *ollama.Client, name string) (*HealthCheck, []ollama.ModelInfo) {
	check := &HealthCheck{Name: "Model Available"}

	ctx, cancel := context.WithTimeout(ctx, DoctorTimeout)
	defer cancel()

	models, err := client.ListModels(ctx)
	if err != nil {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("Could not list models: %v", err)
		check.Fix = "Run: ollama pull " + name
		return check, nil
	}

	_, found := lo.Find(models, func(m ollama.ModelInfo) bool {
		return m.Name == name || strings.HasPrefix(m.Name, name+":")
	})
	if !found {
		check.Status = CheckWarn
		check.Message = "Model not installed: " + name
		check.Fix = "Run: ollama pull " + name
		return check, models
	}

	check.Status = CheckPass
	check.Message = "Model available: " + name
	return check, models
}

func checkConfigDir() *HealthCheck {
	check := &HealthCheck{Name: "Config Directory"}

	dir, err := config.ConfigDir()
	if err != nil {
		check.Status = CheckWarn
		check.Message = err.Error()
		return check
	}

	info, err := os.Stat(dir)
	switch {
	case errors.Is(err, os.ErrNotExist):
		check.Status = CheckWarn
		check.Message = "Config directory does not exist: " + dir
		check.Fix = "Run: dxchat config init"
		return check
	case err != nil:
		check.Status = CheckWarn
		check.Message = err.Error()
		return check
	case !info.IsDir():
		check.Status = CheckFail
		check.Message = dir + " is not a directory"
		check.Err = NewValidationError("config directory", dir, "not a directory")
		return check
	}

	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		check.Status = CheckWarn
		check.Message = "Config directory is not writable: " + dir
		return check
	}
	probe.Close()
	os.Remove(probe.Name())

	check.Status = CheckPass
	check.Message = "Config directory is writable: " + dir
	return check
}

// checkBridgeAddr warns when something already listens on the bridge address.
func checkBridgeAddr(cfg *config.Config) *HealthCheck {
	check := &HealthCheck{Name: "Bridge Address"}

	ln, err := net.Listen("tcp", cfg.Addr())
	if err != nil {
		check.Status = CheckWarn
		check.Message = fmt.Sprintf("Cannot listen on %s: %v", cfg.Addr(), err)
		check.Fix = "Pick another port with: dxchat serve --addr 127.0.0.1:PORT"
		return check
	}
	ln.Close()

	check.Status = CheckPass
	check.Message = "Bridge address is free: " + cfg.Addr()
	return check
}

func modifiedAgo(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return "modified " + humanize.Time(t)
}
