package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/pkg/errors"

	"github.com/trezcool/masomo-admin/core/message"
	"github.com/trezcool/masomo-admin/core/recipient"
)

type sendRequest struct {
	courseID  int
	subject   string
	body      string
	professor message.Professor
	mode      recipient.Mode
	students  []int
	timeout   time.Duration
}

// send composes and dispatches a message through a headless composition session.
func (cli *commandLine) send(req sendRequest) error {
	sess, err := cli.composer.Open(context.Background(), req.courseID, req.professor)
	if err != nil {
		return errors.Wrap(err, "opening composition session")
	}
	defer sess.Close()

	if err = sess.SetDraft(req.subject, req.body); err != nil {
		return err
	}
	if err = sess.SetMode(req.mode); err != nil {
		return err
	}
	for _, id := range req.students {
		st, ok := sess.Student(id)
		if !ok {
			return fmt.Errorf("student %d is not in course %d", id, req.courseID)
		}
		if _, err = sess.AddIndividual(st); err != nil {
			return err
		}
	}

	vr, err := sess.Submit()
	if err != nil {
		return err
	}
	if !vr.Valid() {
		faults := make([]string, 0, len(vr.Faults))
		for _, f := range vr.Faults {
			faults = append(faults, string(f))
		}
		return fmt.Errorf("invalid message: %s", strings.Join(faults, ", "))
	}

	ctx, cancel := waitContext(req.timeout)
	defer cancel()
	if err = sess.Wait(ctx); err != nil {
		return errors.Wrap(err, "waiting for dispatch")
	}
	if failure := sess.Controller().Failure(); failure != nil {
		return failure
	}

	// emails go out in the background: let them through before the process exits
	cli.mail.Wait()

	msg, _ := sess.Controller().Sent()
	_, _ = fmt.Fprintf(cli.out, "message %d sent to %d student(s)\n", msg.ID, len(msg.Recipients))
	return nil
}
