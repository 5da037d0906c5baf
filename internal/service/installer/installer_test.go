package installer

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/lxc/incus/v6/shared/ask"
	"github.com/stretchr/testify/require"

	"github.com/oshokin/archburn/internal/device"
	"github.com/oshokin/archburn/internal/domain/release"
)

// scriptedPrompt answers questions from a queue.
type scriptedPrompt struct {
	proceed bool
	answers []string
	asked   int
}

// AskBool returns the scripted yes/no answer.
func (p *scriptedPrompt) AskBool(string, string) (bool, error) {
	return p.proceed, nil
}

// AskString pops the next answer, falling back to the default like the incus asker does.
func (p *scriptedPrompt) AskString(_ string, defaultAnswer string, _ func(string) error) (string, error) {
	p.asked++

	if len(p.answers) == 0 {
		return defaultAnswer, nil
	}

	answer := p.answers[0]
	p.answers = p.answers[1:]

	if answer == "" {
		return defaultAnswer, nil
	}

	return answer, nil
}

// fakeBackend records destructive calls.
type fakeBackend struct {
	drives     []device.Drive
	unmountErr error
	writeErr   error
	unmounted  []string
	written    []string
}

// List returns the configured drives.
func (f *fakeBackend) List(context.Context) ([]device.Drive, error) { return f.drives, nil }

// Describe returns a one-line description.
func (f *fakeBackend) Describe(_ context.Context, d device.Drive) (string, error) {
	return "NAME " + d.Path + "\n", nil
}

// Unmount records the drive.
func (f *fakeBackend) Unmount(_ context.Context, d device.Drive) error {
	f.unmounted = append(f.unmounted, d.Path)

	return f.unmountErr
}

// Write records the image and drive.
func (f *fakeBackend) Write(_ context.Context, image string, d device.Drive) error {
	f.written = append(f.written, image+"->"+d.Path)

	return f.writeErr
}

// RequiredTools needs nothing.
func (f *fakeBackend) RequiredTools() []string { return nil }

// twoDrives returns a backend with two USB sticks.
func twoDrives() *fakeBackend {
	return &fakeBackend{drives: []device.Drive{
		{Path: "/dev/sdb", Size: 8 << 30, Transport: "usb"},
		{Path: "/dev/sdc", Size: 32 << 30, Transport: "usb"},
	}}
}

// TestRun_NonDestructiveOutcomes checks every early return that must not touch a drive.
func TestRun_NonDestructiveOutcomes(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		proceed bool
		drives  bool
		answers []string
		want    Outcome
		output  string
	}{
		{name: "declined", proceed: false, drives: true, want: OutcomeDeclined},
		{name: "no drives", proceed: true, drives: false, want: OutcomeNoDrives, output: "No removable drives found."},
		{name: "zero skips", proceed: true, drives: true, answers: []string{"0"}, want: OutcomeSkipped},
		{name: "empty skips", proceed: true, drives: true, answers: []string{""}, want: OutcomeSkipped},
		{name: "above range", proceed: true, drives: true, answers: []string{"3"}, want: OutcomeInvalidSelection, output: "Invalid selection"},
		{name: "negative", proceed: true, drives: true, answers: []string{"-1"}, want: OutcomeInvalidSelection},
		{name: "not a number", proceed: true, drives: true, answers: []string{"sdb"}, want: OutcomeInvalidSelection},
		{name: "lowercase yes", proceed: true, drives: true, answers: []string{"1", "yes"}, want: OutcomeCancelled, output: "Cancelled."},
		{name: "empty confirmation", proceed: true, drives: true, answers: []string{"2", ""}, want: OutcomeCancelled},
		{name: "y", proceed: true, drives: true, answers: []string{"2", "Y"}, want: OutcomeCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			backend := &fakeBackend{}
			if tt.drives {
				backend = twoDrives()
			}

			var out bytes.Buffer

			prompt := &scriptedPrompt{proceed: tt.proceed, answers: tt.answers}

			outcome, err := New(backend, prompt, &out).Run(context.Background(), "/tmp/image.iso")
			require.NoError(t, err)
			require.Equal(t, tt.want, outcome)
			require.Contains(t, out.String(), tt.output)
			require.Empty(t, backend.unmounted)
			require.Empty(t, backend.written)
		})
	}
}

// TestRun_Writes checks that the exact confirmation word unmounts and writes the selected drive.
func TestRun_Writes(t *testing.T) {
	t.Parallel()

	backend := twoDrives()
	prompt := &scriptedPrompt{proceed: true, answers: []string{"2", "YES"}}

	var out bytes.Buffer

	outcome, err := New(backend, prompt, &out).Run(context.Background(), "/tmp/image.iso")
	require.NoError(t, err)
	require.Equal(t, OutcomeWritten, outcome)
	require.Equal(t, []string{"/dev/sdc"}, backend.unmounted)
	require.Equal(t, []string{"/tmp/image.iso->/dev/sdc"}, backend.written)
	require.Contains(t, out.String(), "1) /dev/sdb")
	require.Contains(t, out.String(), "NAME /dev/sdc")
}

// TestRun_Failures checks the stage classification of unmount and write failures.
func TestRun_Failures(t *testing.T) {
	t.Parallel()

	backend := twoDrives()
	backend.unmountErr = errors.New("target is busy")

	_, err := New(backend, &scriptedPrompt{proceed: true, answers: []string{"1", "YES"}}, &bytes.Buffer{}).
		Run(context.Background(), "/tmp/image.iso")
	require.ErrorIs(t, err, release.ErrUnmount)
	require.Empty(t, backend.written)

	backend = twoDrives()
	backend.writeErr = errors.New("no space left on device")

	_, err = New(backend, &scriptedPrompt{proceed: true, answers: []string{"1", "YES"}}, &bytes.Buffer{}).
		Run(context.Background(), "/tmp/image.iso")
	require.ErrorIs(t, err, release.ErrWrite)
}

// TestRun_ClosedInput checks that stdin closing at any prompt ends the installer without an error.
func TestRun_ClosedInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		input string
		want  Outcome
	}{
		{name: "at the yes/no question", input: "", want: OutcomeDeclined},
		{name: "at the menu", input: "y\n", want: OutcomeSkipped},
		{name: "at the confirmation", input: "y\n1\n", want: OutcomeCancelled},
		{name: "unterminated confirmation", input: "y\n1\nYES", want: OutcomeCancelled},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			backend := twoDrives()
			asker := ask.NewAsker(bufio.NewReader(strings.NewReader(tt.input)))

			outcome, err := New(backend, &asker, &bytes.Buffer{}).Run(context.Background(), "/tmp/image.iso")
			require.NoError(t, err)
			require.Equal(t, tt.want, outcome)
			require.Empty(t, backend.unmounted)
			require.Empty(t, backend.written)
		})
	}
}
