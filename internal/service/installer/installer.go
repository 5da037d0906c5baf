// Package installer implements the interactive installer stage: choose a
// removable drive, confirm, unmount and write the image onto it.
//
// Declining, finding no drives, skipping, an invalid selection and a missing
// confirmation are all normal outcomes, not errors.
package installer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/oshokin/archburn/internal/device"
	"github.com/oshokin/archburn/internal/domain/release"
	"github.com/oshokin/archburn/internal/logger"
)

// ConfirmationWord is the literal answer that allows the destructive write.
const ConfirmationWord = "YES"

// Outcome is how an installer run ended.
type Outcome int

// Installer outcomes.
const (
	OutcomeDeclined Outcome = iota
	OutcomeNoDrives
	OutcomeSkipped
	OutcomeInvalidSelection
	OutcomeCancelled
	OutcomeWritten
)

// String implements fmt.Stringer.
func (o Outcome) String() string {
	switch o {
	case OutcomeDeclined:
		return "declined"
	case OutcomeNoDrives:
		return "no drives"
	case OutcomeSkipped:
		return "skipped"
	case OutcomeInvalidSelection:
		return "invalid selection"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeWritten:
		return "written"
	default:
		return "unknown"
	}
}

// Prompter asks the user questions. *ask.Asker from incus satisfies it.
type Prompter interface {
	AskBool(question string, defaultAnswer string) (bool, error)
	AskString(question string, defaultAnswer string, validate func(string) error) (string, error)
}

// Stage runs the installer.
type Stage struct {
	// backend lists and writes drives.
	backend device.Backend
	// prompt reads answers.
	prompt Prompter
	// out receives the menu and the drive details.
	out io.Writer
}

// New creates the stage.
func New(backend device.Backend, prompt Prompter, out io.Writer) *Stage {
	return &Stage{
		backend: backend,
		prompt:  prompt,
		out:     out,
	}
}

// Run offers to write image onto a removable drive.
func (s *Stage) Run(ctx context.Context, image string) (Outcome, error) {
	ctx = logger.WithName(ctx, "install")

	proceed, err := s.prompt.AskBool("Write the image to a USB drive? [y/N] ", "n")
	if err != nil {
		return OutcomeDeclined, s.endOfInput(err)
	}

	if !proceed {
		return OutcomeDeclined, nil
	}

	drives, err := s.backend.List(ctx)
	if err != nil {
		return OutcomeNoDrives, fmt.Errorf("%w: %w", release.ErrEnumeration, err)
	}

	if len(drives) == 0 {
		s.printf("No removable drives found.\n")

		return OutcomeNoDrives, nil
	}

	selected, outcome, err := s.choose(drives)
	if err != nil || selected == nil {
		return outcome, err
	}

	drive := *selected

	details, err := s.backend.Describe(ctx, drive)
	if err != nil {
		return OutcomeCancelled, fmt.Errorf("%w: %w", release.ErrEnumeration, err)
	}

	s.printf("\n%s\n", strings.TrimRight(details, "\n"))

	answer, err := s.prompt.AskString(
		fmt.Sprintf("All data on %s will be destroyed. Type %s to continue: ", drive.Path, ConfirmationWord), "no", nil)
	if err != nil {
		return OutcomeCancelled, s.endOfInput(err)
	}

	if answer != ConfirmationWord {
		s.printf("Cancelled.\n")

		return OutcomeCancelled, nil
	}

	ctx = logger.WithKV(ctx, "device", drive.Path)

	if err = s.backend.Unmount(ctx, drive); err != nil {
		return OutcomeCancelled, fmt.Errorf("%w: %w", release.ErrUnmount, err)
	}

	logger.InfoKV(ctx, "Writing image", "image", image, "block_size", device.BlockSize)

	if err = s.backend.Write(ctx, image, drive); err != nil {
		return OutcomeCancelled, fmt.Errorf("%w: %w", release.ErrWrite, err)
	}

	logger.Info(ctx, "Image written, the drive can be removed")

	return OutcomeWritten, nil
}

// choose prints the menu and reads a single selection.
// The outcome only matters when the returned drive is nil.
func (s *Stage) choose(drives []device.Drive) (*device.Drive, Outcome, error) {
	s.printf("Removable drives:\n")

	for i, d := range drives {
		s.printf("  %d) %s\n", i+1, d)
	}

	answer, err := s.prompt.AskString(fmt.Sprintf("Select a drive [1-%d, 0 to skip]: ", len(drives)), "0", nil)
	if err != nil {
		return nil, OutcomeSkipped, s.endOfInput(err)
	}

	answer = strings.TrimSpace(answer)
	if answer == "" || answer == "0" {
		return nil, OutcomeSkipped, nil
	}

	index, err := strconv.Atoi(answer)
	if err != nil || index < 1 || index > len(drives) {
		s.printf("Invalid selection: %q\n", answer)

		return nil, OutcomeInvalidSelection, nil
	}

	return &drives[index-1], OutcomeSkipped, nil
}

// endOfInput swallows io.EOF: a closed stdin ends the installer like an empty answer.
func (s *Stage) endOfInput(err error) error {
	if errors.Is(err, io.EOF) {
		s.printf("\n")

		return nil
	}

	return err
}

// printf writes to the menu output, ignoring terminal write errors.
func (s *Stage) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(s.out, format, args...)
}
