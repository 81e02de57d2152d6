package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ergochat/readline"
	"github.com/learn-decentralized-systems/toytlv"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/drpcorg/polka"
	"github.com/drpcorg/polka/rec"
)

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),
	readline.PcItem("add"),
	readline.PcItem("get"),
	readline.PcItem("near"),
	readline.PcItem("id"),
	readline.PcItem("list"),
	readline.PcItem("all"),
	readline.PcItem("range"),
	readline.PcItem("rm"),
	readline.PcItem("refresh"),
	readline.PcItem("verify"),
	readline.PcItem("export"),
	readline.PcItem("import"),
	readline.PcItem("stats"),
	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

const help = `add <text ...>        shelve a new record with the given body
get <n>               fetch record #n exactly
near <n> asc|desc     fetch the record nearest to #n in that direction
id <identifier>       fetch a record by its directory name
list                  print records loaded in memory
all                   materialize and print every record on the shelf
range <from> <to>     print records numbered in (to, from]
rm <n>                unshelve record #n
refresh               rescan the shelf directory
verify [workers]      check every manifest on the shelf
export <file>         write the whole shelf into one TLV stream
import <file>         shelve every record from a TLV stream
stats                 print shelf and cache counters
exit | quit           leave`

func printRec(r *rec.Rec) {
	note := r.Note()
	if note != "" {
		note = "\t" + note
	}
	fmt.Printf("#%d\t%s\t%dB%s\n", r.Number(), r.ID(), len(r.Body()), note)
}

func parseNum(arg string) (int64, error) {
	return strconv.ParseInt(arg, 10, 64)
}

func exportShelf(shelf *rec.Archive, path string) error {
	feeder, err := shelf.Feeder(64)
	if err != nil {
		return err
	}
	defer func() { _ = feeder.Close() }()
	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() { _ = file.Close() }()
	sink := toytlv.Writer2Drainer{Writer: file}
	for {
		recs, err := feeder.Feed()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if err = sink.Drain(recs); err != nil {
			return err
		}
	}
}

func importShelf(shelf *rec.Archive, m *polka.Map[*rec.Rec], path string) (int, error) {
	file, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	feeder := toytlv.ReadCloser2FeedCloser{Reader: file}
	defer func() { _ = feeder.Close() }()
	total := 0
	for {
		recs, err := feeder.Feed()
		if len(recs) > 0 {
			n, ierr := shelf.Import(recs)
			total += n
			if ierr != nil {
				return total, ierr
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return total, err
		}
	}
	return total, m.Refresh()
}

func main() {
	if len(os.Args) != 2 {
		_, _ = fmt.Fprintln(os.Stderr, "Usage: polka <shelf-dir>")
		os.Exit(-2)
	}
	dir := os.Args[1]

	shelf, err := rec.OpenArchive(dir, rec.ArchiveOptions{})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}
	m, err := rec.Map(dir, polka.Options{})
	if err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err.Error())
		os.Exit(-1)
	}
	prometheus.MustRegister(polka.LoadCount, polka.ShortcutPruneCount,
		polka.SearchCount, polka.NewMapCollector(m))

	l, err := readline.NewEx(&readline.Config{
		Prompt:          "♪ ",
		HistoryFile:     "/tmp/polka.history",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		panic(err)
	}
	defer l.Close()
	l.CaptureExitSignal()

	for {
		line, err := l.Readline()
		if err == readline.ErrInterrupt {
			if len(line) == 0 {
				break
			} else {
				continue
			}
		} else if err == io.EOF {
			break
		}

		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		args := strings.Split(line, " ")
		cmd := args[0]
		args = args[1:]
		err = nil
		switch cmd {
		case "help":
			fmt.Println(help)
		case "exit", "quit":
			os.Exit(0)
		case "add":
			var r *rec.Rec
			r, err = shelf.Append([]byte(strings.Join(args, " ")), "")
			if err == nil {
				m.Put(r)
				printRec(r)
			}
		case "get":
			if len(args) != 1 {
				_, _ = fmt.Fprintln(os.Stderr, "usage: get <n>")
				continue
			}
			var n int64
			if n, err = parseNum(args[0]); err != nil {
				break
			}
			if r, ok := m.Get(n); ok {
				printRec(r)
			} else {
				fmt.Printf("no record #%d\n", n)
			}
		case "near":
			if len(args) != 2 {
				_, _ = fmt.Fprintln(os.Stderr, "usage: near <n> asc|desc")
				continue
			}
			var n int64
			if n, err = parseNum(args[0]); err != nil {
				break
			}
			d := polka.Desc
			if strings.EqualFold(args[1], "asc") {
				d = polka.Asc
			}
			if r, ok := m.Search(n, d); ok {
				printRec(r)
			} else {
				fmt.Printf("nothing %s of #%d\n", d, n)
			}
		case "id":
			if len(args) != 1 {
				_, _ = fmt.Fprintln(os.Stderr, "usage: id <identifier>")
				continue
			}
			if r, ok := m.ByID(args[0]); ok {
				printRec(r)
			} else {
				fmt.Printf("no record %s\n", args[0])
			}
		case "list", "show":
			for _, r := range m.Loaded() {
				printRec(r)
			}
		case "all":
			for _, r := range m.All() {
				printRec(r)
			}
		case "range":
			if len(args) != 2 {
				_, _ = fmt.Fprintln(os.Stderr, "usage: range <from> <to>")
				continue
			}
			var from, to int64
			if from, err = parseNum(args[0]); err != nil {
				break
			}
			if to, err = parseNum(args[1]); err != nil {
				break
			}
			for _, r := range m.Range(from, to) {
				printRec(r)
			}
		case "rm":
			if len(args) != 1 {
				_, _ = fmt.Fprintln(os.Stderr, "usage: rm <n>")
				continue
			}
			var n int64
			if n, err = parseNum(args[0]); err != nil {
				break
			}
			r, ok := m.Get(n)
			if !ok {
				fmt.Printf("no record #%d\n", n)
				continue
			}
			if err = shelf.Remove(r); err == nil {
				m.Remove(r)
				err = m.Refresh()
			}
		case "refresh":
			err = m.Refresh()
		case "verify":
			workers := 4
			if len(args) == 1 {
				workers, err = strconv.Atoi(args[0])
				if err != nil {
					break
				}
			}
			var report *rec.Report
			report, err = shelf.Verify(context.Background(), workers)
			if err == nil {
				fmt.Printf("checked %d, broken %d\n", report.Checked, len(report.Broken))
				for _, id := range report.Broken {
					fmt.Println("\t" + id)
				}
			}
		case "export":
			if len(args) != 1 {
				_, _ = fmt.Fprintln(os.Stderr, "usage: export <file>")
				continue
			}
			err = exportShelf(shelf, args[0])
		case "import":
			if len(args) != 1 {
				_, _ = fmt.Fprintln(os.Stderr, "usage: import <file>")
				continue
			}
			var n int
			if n, err = importShelf(shelf, m, args[0]); err == nil {
				fmt.Printf("shelved %d records\n", n)
			}
		case "stats":
			fmt.Printf("on disk\t%d\nloaded\t%d\n", m.Len(), m.LoadedCount())
			if first, err := m.FirstKey(); err == nil {
				last, _ := m.LastKey()
				fmt.Printf("newest\t#%d\noldest\t#%d\n", first, last)
			}
		default:
			_, _ = fmt.Fprintf(os.Stderr, "command unknown: %s\n", cmd)
		}

		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Error executing %s: %s\n", cmd, err.Error())
		}
	}
}
