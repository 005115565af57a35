// Package media wraps the external audio mixer used to combine per-speaker
// capture files into a single processing input.
package media

import (
	"context"
	"fmt"
	"os/exec"
	"strings"

	"chronicle/internal/services"
)

// ResolveMixer returns the absolute path of the mixer binary, or an error
// when it is not installed.
func ResolveMixer(binary string) (string, error) {
	path, err := exec.LookPath(binary)
	if err != nil {
		return "", services.Wrap(services.ErrConfiguration, "merge", "resolve mixer",
			fmt.Sprintf("binary %q not found in PATH", binary), err)
	}
	return path, nil
}

// MixdownArgs builds the mixer invocation that overlays every input into one
// mono track. Inputs keep their caller-supplied order so the command line is
// reproducible for a given session.
func MixdownArgs(inputs []string, output string, sampleRate int) []string {
	args := make([]string, 0, len(inputs)*2+10)
	for _, input := range inputs {
		args = append(args, "-i", input)
	}
	filter := fmt.Sprintf("amix=inputs=%d:duration=longest:dropout_transition=0", len(inputs))
	args = append(args,
		"-filter_complex", filter,
		"-ac", "1",
		"-ar", fmt.Sprintf("%d", sampleRate),
		"-y",
		output,
	)
	return args
}

// Mixdown runs the mixer, combining inputs into output. The mixer's combined
// output is included in the error on a non-zero exit.
func Mixdown(ctx context.Context, binary string, inputs []string, output string, sampleRate int) error {
	if len(inputs) == 0 {
		return services.Wrap(services.ErrValidation, "merge", "mixdown", "no input files", nil)
	}
	path, err := ResolveMixer(binary)
	if err != nil {
		return err
	}
	cmd := exec.CommandContext(ctx, path, MixdownArgs(inputs, output, sampleRate)...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		detail := strings.TrimSpace(string(out))
		if len(detail) > 2000 {
			detail = detail[len(detail)-2000:]
		}
		return services.Wrap(services.ErrExternalTool, "merge", "mixdown", detail, err)
	}
	return nil
}
