package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/yanun0323/logs"

	"turbodecode/internal/errors"
	"turbodecode/internal/record"
	"turbodecode/internal/turbo"
	"turbodecode/pkg/exception"
)

const defaultTerminator = "TERM"

func main() {
	out := flag.String("out", "Turbo_Codes_Data.csv", "Output CSV path")
	prefix := flag.String("prefix", "X", "Key prefix")
	terminator := flag.String("terminator", defaultTerminator, "Marker written after each symbol, before CRLF; must be 4 bytes")
	flag.Parse()

	messages := flag.Args()
	if len(messages) == 0 {
		logs.Errorf("gen: no messages; pass them as arguments")
		os.Exit(2)
	}

	if err := checkTerminator(*terminator); err != nil {
		logs.Errorf("gen: %+v", err)
		os.Exit(2)
	}

	file, err := os.Create(*out)
	if err != nil {
		logs.Errorf("gen: create %s: %v", *out, err)
		os.Exit(1)
	}
	if err := writeLines(file, *prefix, *terminator, messages); err != nil {
		_ = file.Close()
		logs.Errorf("gen: write %s: %v", *out, err)
		os.Exit(1)
	}
	if err := file.Close(); err != nil {
		logs.Errorf("gen: close %s: %v", *out, err)
		os.Exit(1)
	}
	logs.Infof("gen: wrote %d records to %s", len(messages), *out)
}

// checkTerminator makes sure the terminator plus the CR of each line is
// exactly the suffix the record parser strips.
func checkTerminator(terminator string) error {
	if want := record.DefaultSuffixLen - 1; len(terminator) != want {
		return errors.Wrapf(exception.ErrInvalidArgument, "terminator %q must be %d bytes", terminator, want)
	}
	return nil
}

// writeLines writes one CRLF terminated KEY,SYMBOL<terminator> line per
// message. Keys are prefix plus a zero padded index starting at 1.
func writeLines(w io.Writer, prefix, terminator string, messages []string) error {
	if err := checkTerminator(terminator); err != nil {
		return err
	}
	buf := bufio.NewWriter(w)
	for i, msg := range messages {
		if _, err := fmt.Fprintf(buf, "%s%03d,%s%s\r\n", prefix, i+1, turbo.Encode(msg), terminator); err != nil {
			return err
		}
	}
	return buf.Flush()
}
