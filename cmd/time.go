package cmd

import (
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"firestige.xyz/sle/pkg/ccsds"
)

var timeCmd = &cobra.Command{
	Use:   "time [RFC3339 timestamp | CDS hex]",
	Short: "Convert between UTC and CCSDS CDS time codes",
	Long: `Print the CCSDS day segmented (CDS) encoding of a timestamp, or decode
a CDS value given in hex with --decode. Without an argument the current time
is encoded.

Examples:
  sle time 2024-03-01T10:00:00Z
  sle time --decode 5e66022551000000`,
	Args: cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		arg := ""
		if len(args) == 1 {
			arg = args[0]
		}
		if err := runTime(arg, timeDecode, time.Now(), os.Stdout); err != nil {
			exitWithError("time conversion failed", err)
		}
	},
}

var timeDecode bool

func init() {
	timeCmd.Flags().BoolVarP(&timeDecode, "decode", "d", false,
		"decode a CDS hex value (8 or 10 bytes)")
}

func runTime(arg string, decode bool, now time.Time, out io.Writer) error {
	if decode {
		b, err := hex.DecodeString(arg)
		if err != nil {
			return fmt.Errorf("invalid hex %q: %w", arg, err)
		}
		t, err := ccsds.DecodeCDS(b)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, t.UTC().Format(time.RFC3339Nano))
		return nil
	}

	t := now
	if arg != "" {
		var err error
		if t, err = time.Parse(time.RFC3339Nano, arg); err != nil {
			return fmt.Errorf("invalid timestamp %q: %w", arg, err)
		}
	}
	if t.Before(ccsds.Epoch) {
		return fmt.Errorf("timestamp %s is before the CCSDS epoch", t.UTC().Format(time.RFC3339))
	}

	c := ccsds.EncodeCDS(t)
	fmt.Fprintf(out, "time: %s\n", t.UTC().Format(time.RFC3339Nano))
	fmt.Fprintf(out, "cds:  %s\n", hex.EncodeToString(c[:]))
	fmt.Fprintf(out, "days/ms/us: %s\n", c)
	return nil
}
