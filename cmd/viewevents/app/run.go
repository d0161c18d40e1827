package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"github.com/daichitakahashi/condvar/events"
)

func Run() {
	var (
		cond = pflag.StringP("cond", "c", "", "")
		kind = pflag.StringP("kind", "k", "", "")
	)
	pflag.Parse()

	filename := pflag.Arg(0)
	if filename == "" {
		log.Fatal("journal db file must be specified")
	}

	if err := run(filename, *cond, *kind); err != nil {
		log.Fatal(err)
	}
}

func run(filename, cond, kind string) error {
	_, err := os.Stat(filename)
	if err != nil {
		return err
	}

	if cond == "" {
		return errors.New("condition variable name must be specified")
	}

	var waits, notifies bool
	if kind == "" {
		waits = true
		notifies = true
	} else {
		for _, k := range strings.Split(kind, ",") {
			switch k {
			case "wait":
				waits = true
			case "notify":
				notifies = true
			}
		}
	}

	db, err := events.Open(context.Background(), filename)
	if err != nil {
		return fmt.Errorf("failed to open database: %s", err)
	}
	defer func() {
		_ = db.Close()
	}()

	p := newTablePrinter()

	if waits {
		store, err := events.NewRecordStore[events.WaitRecord](db)
		if err != nil {
			return err
		}
		r, err := store.Get(cond)
		if err != nil && !errors.Is(err, events.ErrRecordNotFound) {
			return err
		}
		if r != nil {
			p.insertWaitLogs(r.Logs)
		}
	}

	if notifies {
		store, err := events.NewRecordStore[events.NotifyRecord](db)
		if err != nil {
			return err
		}
		r, err := store.Get(cond)
		if err != nil && !errors.Is(err, events.ErrRecordNotFound) {
			return err
		}
		if r != nil {
			p.insertNotifyLogs(r.Logs)
		}
	}

	fmt.Printf("Condition variable: %q\n\n", cond)
	p.print()
	return nil
}
