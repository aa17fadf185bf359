package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/trezcool/masomo-admin/core"
	"github.com/trezcool/masomo-admin/core/compose"
	"github.com/trezcool/masomo-admin/core/message"
)

var errHelp = errors.New("help provided")

type commandLine struct {
	migrate  func(command string, args ...string) error
	composer *compose.Manager
	mail     core.EmailService
	out      io.Writer
}

func (cli *commandLine) printUsage() {
	_, _ = fmt.Fprintln(cli.out, "Usage:")
	_, _ = fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS] - run a goose command (up, down, status...) on the database")
	_, _ = fmt.Fprintln(cli.out, "  send -course ID -subject SUBJECT -message BODY [-all] [-classes IDS] [-students IDS] - send a message")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2], args[3:]...)
	case "send":
		req, err := cli.parseSend(args[2:])
		if err != nil {
			return err
		}
		return cli.send(req)
	default:
		cli.printUsage()
		return errHelp
	}
}

func (cli *commandLine) parseSend(args []string) (sendRequest, error) {
	cmd := flag.NewFlagSet("send", flag.ContinueOnError)
	cmd.SetOutput(cli.out)
	courseID := cmd.Int("course", 0, "The course ID.")
	subject := cmd.String("subject", "", "The message subject.")
	body := cmd.String("message", "", "The message body (HTML).")
	all := cmd.Bool("all", false, "Send to every student of the course.")
	classes := cmd.String("classes", "", "Comma separated IDs of classes to send to.")
	students := cmd.String("students", "", "Comma separated IDs of students to send to.")
	profID := cmd.String("professor-id", "admin", "The ID of the sender.")
	profName := cmd.String("professor-name", "Administration", "The name of the sender.")
	profEmail := cmd.String("professor-email", "", "The email of the sender.")
	timeout := cmd.Duration("wait", time.Minute, "How long to wait for the dispatch.")

	if err := cmd.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return sendRequest{}, errHelp
		}
		return sendRequest{}, err
	}
	if *courseID <= 0 {
		cmd.Usage()
		return sendRequest{}, errHelp
	}

	req := sendRequest{
		courseID:  *courseID,
		subject:   *subject,
		body:      *body,
		professor: message.Professor{ID: *profID, Name: *profName, Email: *profEmail},
		timeout:   *timeout,
	}
	req.mode.AllStudents = *all

	var err error
	if req.mode.Classes, err = parseIDs(*classes); err != nil {
		return sendRequest{}, fmt.Errorf("invalid -classes: %v", err)
	}
	if req.students, err = parseIDs(*students); err != nil {
		return sendRequest{}, fmt.Errorf("invalid -students: %v", err)
	}
	return req, nil
}

func parseIDs(s string) ([]int, error) {
	var ids []int
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part == "" {
			continue
		}
		id, err := strconv.Atoi(part)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%q is not an ID", part)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

func waitContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		return context.WithCancel(context.Background())
	}
	return context.WithTimeout(context.Background(), timeout)
}
