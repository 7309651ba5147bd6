// imgfs operates on a formatted disk image file.
//
// Usage:
//
//	imgfs [-debug L] image command [args]
//
// Run "imgfs image shell" for an interactive session, and "help" inside it
// for the command list.
package main

import (
	"bufio"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/mit-pdos/imgfs/common"
	"github.com/mit-pdos/imgfs/fs"
	"github.com/mit-pdos/imgfs/util"
)

func main() {
	if err := run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "imgfs: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) error {
	flags := flag.NewFlagSet("imgfs", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Uint64Var(&util.Debug, "debug", 0, "debug level")
	if err := flags.Parse(args); err != nil {
		return err
	}
	if flags.NArg() < 2 {
		return fmt.Errorf("usage: imgfs [flags] image command [args]")
	}

	fsys, err := fs.Open(flags.Arg(0))
	if err != nil {
		return err
	}
	s := &session{fs: fsys, stdin: stdin, stdout: stdout, stderr: stderr}
	err = s.exec(flags.Args()[1:])
	if cerr := fsys.Close(); err == nil {
		err = cerr
	}
	return err
}

type session struct {
	fs     *fs.Fs
	stdin  io.Reader // write data; nil inside the shell
	stdout io.Writer
	stderr io.Writer
}

type command struct {
	usage string
	min   int
	max   int
	run   func(s *session, args []string) error
}

var commands map[string]command

func init() {
	commands = map[string]command{
		"ls":       {"ls [path]", 0, 1, (*session).ls},
		"mkdir":    {"mkdir path", 1, 1, (*session).mkdir},
		"rmdir":    {"rmdir path", 1, 1, (*session).rmdir},
		"create":   {"create path", 1, 1, (*session).create},
		"rm":       {"rm path", 1, 1, (*session).rm},
		"read":     {"read path [offset [length]]", 1, 3, (*session).read},
		"write":    {"write path offset [data...]", 2, -1, (*session).write},
		"truncate": {"truncate path size", 2, 2, (*session).truncate},
		"import":   {"import hostfile path", 2, 2, (*session).importFile},
		"export":   {"export path hostfile", 2, 2, (*session).exportFile},
		"stat":     {"stat path", 1, 1, (*session).stat},
		"df":       {"df", 0, 0, (*session).df},
		"check":    {"check", 0, 0, (*session).check},
		"shell":    {"shell", 0, 0, (*session).shell},
	}
}

func (s *session) exec(args []string) error {
	name, args := args[0], args[1:]
	c, ok := commands[name]
	if !ok {
		return fmt.Errorf("unknown command %q (try help in the shell)", name)
	}
	if len(args) < c.min || (c.max >= 0 && len(args) > c.max) {
		return fmt.Errorf("usage: %s", c.usage)
	}
	return c.run(s, args)
}

func parseNum(what string, arg string) (uint64, error) {
	n, err := strconv.ParseUint(arg, 0, 64)
	if err != nil {
		return 0, fmt.Errorf("bad %s %q", what, arg)
	}
	return n, nil
}

func (s *session) printStat(name string, st *fs.Stat) {
	fmt.Fprintf(s.stdout, "%-4v %8d %3d  %s\n", st.Kind, st.Size, st.Inum, name)
}

func (s *session) ls(args []string) error {
	path := "/"
	if len(args) > 0 {
		path = args[0]
	}
	st, err := s.fs.StatPath(path)
	if err != nil {
		return err
	}
	if st.Kind != common.KindDir {
		s.printStat(path, st)
		return nil
	}
	ents, err := s.fs.List(st.Inum)
	if err != nil {
		return err
	}
	for _, de := range ents {
		est, err := s.fs.Stat(de.Inum)
		if err != nil {
			return fmt.Errorf("%s: %w", de.Name, err)
		}
		s.printStat(de.Name, est)
	}
	return nil
}

func (s *session) mkdir(args []string) error {
	_, err := s.fs.MkdirPath(args[0])
	return err
}

func (s *session) rmdir(args []string) error {
	return s.fs.RmdirPath(args[0])
}

func (s *session) create(args []string) error {
	_, err := s.fs.CreatePath(args[0])
	return err
}

func (s *session) rm(args []string) error {
	return s.fs.DeletePath(args[0])
}

func (s *session) read(args []string) error {
	st, err := s.fs.StatPath(args[0])
	if err != nil {
		return err
	}
	var off uint64
	n := st.Size
	if len(args) > 1 {
		if off, err = parseNum("offset", args[1]); err != nil {
			return err
		}
		n = st.Size - util.Min(off, st.Size)
	}
	if len(args) > 2 {
		if n, err = parseNum("length", args[2]); err != nil {
			return err
		}
	}
	data, err := s.fs.ReadPath(args[0], off, n)
	if err != nil {
		return err
	}
	_, err = s.stdout.Write(data)
	return err
}

func (s *session) write(args []string) error {
	off, err := parseNum("offset", args[1])
	if err != nil {
		return err
	}
	var data []byte
	if len(args) > 2 {
		data = []byte(strings.Join(args[2:], " "))
	} else if s.stdin != nil {
		if data, err = io.ReadAll(s.stdin); err != nil {
			return err
		}
	} else {
		return fmt.Errorf("usage: %s", commands["write"].usage)
	}
	n, err := s.fs.WritePath(args[0], off, data)
	if n > 0 || err == nil {
		fmt.Fprintf(s.stdout, "wrote %d bytes\n", n)
	}
	return err
}

func (s *session) truncate(args []string) error {
	size, err := parseNum("size", args[1])
	if err != nil {
		return err
	}
	return s.fs.TruncatePath(args[0], size)
}

// importFile copies a host file into the image, replacing the contents of
// an existing file.
func (s *session) importFile(args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return err
	}
	path := args[1]
	if _, err := s.fs.LookupPath(path); errors.Is(err, common.ErrNotFound) {
		if _, err := s.fs.CreatePath(path); err != nil {
			return err
		}
	} else if err != nil {
		return err
	} else if err := s.fs.TruncatePath(path, 0); err != nil {
		return err
	}
	n, err := s.fs.WritePath(path, 0, data)
	if err != nil {
		return err
	}
	fmt.Fprintf(s.stdout, "imported %d bytes\n", n)
	return nil
}

func (s *session) exportFile(args []string) error {
	st, err := s.fs.StatPath(args[0])
	if err != nil {
		return err
	}
	data, err := s.fs.ReadPath(args[0], 0, st.Size)
	if err != nil {
		return err
	}
	return os.WriteFile(args[1], data, 0644)
}

func (s *session) stat(args []string) error {
	st, err := s.fs.StatPath(args[0])
	if err != nil {
		return err
	}
	fmt.Fprintf(s.stdout, "inode %d kind %v size %d blocks %d\n",
		st.Inum, st.Kind, st.Size, st.NBlocks)
	return nil
}

func (s *session) df(args []string) error {
	st := s.fs.StatFs()
	fmt.Fprintf(s.stdout, "block size %d\n", st.BlockSize)
	fmt.Fprintf(s.stdout, "blocks %d used %d free %d\n",
		st.NBlocks, st.NBlocks-st.NFreeBlocks, st.NFreeBlocks)
	fmt.Fprintf(s.stdout, "inodes %d used %d free %d\n",
		st.NInodes, st.NInodes-st.NFreeInodes, st.NFreeInodes)
	fmt.Fprintf(s.stdout, "max file size %d\n", st.MaxFileSize)
	return nil
}

func (s *session) check(args []string) error {
	if err := s.fs.Check(); err != nil {
		return err
	}
	fmt.Fprintln(s.stdout, "ok")
	return nil
}

func (s *session) help() {
	var names []string
	for name := range commands {
		if name != "shell" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(s.stdout, "  %s\n", commands[name].usage)
	}
	fmt.Fprintln(s.stdout, "  help\n  exit")
}

// shell runs one command per input line until exit or end of input.
func (s *session) shell(args []string) error {
	in := bufio.NewScanner(s.stdin)
	sh := &session{fs: s.fs, stdout: s.stdout, stderr: s.stderr}
	for {
		fmt.Fprint(s.stdout, "imgfs> ")
		if !in.Scan() {
			fmt.Fprintln(s.stdout)
			return in.Err()
		}
		words := strings.Fields(in.Text())
		if len(words) > 0 && words[0] == "write" {
			// the data is the rest of the line, spacing included
			words = splitLine(in.Text(), 4)
		}
		if len(words) == 0 {
			continue
		}
		switch words[0] {
		case "exit", "quit":
			return nil
		case "help", "?":
			sh.help()
			continue
		case "shell":
			fmt.Fprintln(s.stderr, "imgfs: already in the shell")
			continue
		}
		if err := sh.exec(words); err != nil {
			fmt.Fprintf(s.stderr, "imgfs: %v\n", err)
		}
	}
}

// splitLine splits line into at most n space-separated words; the last one
// keeps the remainder of the line as is.
func splitLine(line string, n int) []string {
	var words []string
	rest := strings.TrimLeft(line, " \t")
	for rest != "" && len(words) < n-1 {
		i := strings.IndexAny(rest, " \t")
		if i < 0 {
			break
		}
		words = append(words, rest[:i])
		rest = strings.TrimLeft(rest[i:], " \t")
	}
	if rest != "" {
		words = append(words, rest)
	}
	return words
}
