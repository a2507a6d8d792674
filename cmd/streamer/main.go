package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	opts := &runOptions{}

	root := &cobra.Command{
		Use:   "streamer",
		Short: "Detect speech in an audio stream and send it for transcription",
		Long: `streamer runs voice activity detection on captured audio, cuts it into
speech segments and streams only the speech to a transcription backend.

Examples:
  streamer run --input meeting.wav
  streamer run --input meeting.wav --fast
  sox -d -t f32 -c 1 -r 16000 - | streamer run --input -
  streamer models`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStreamer(cmd.Context(), opts, cmd.OutOrStdout())
		},
	}
	bindRunFlags(root, opts)

	root.AddCommand(newRunCmd(opts), newModelsCmd())
	return root
}
