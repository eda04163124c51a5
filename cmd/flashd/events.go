package main

import (
	"encoding/json"
	"fmt"
	"os"
	"os/signal"

	"github.com/voidshard/flashd/pkg/structs"
)

const (
	docEvents = `Print job events published to the queue by a flashd worker`
)

type optsEvents struct {
	optsQueue
}

func (c *optsEvents) Execute(args []string) error {
	if c.QueueURL == "" {
		return fmt.Errorf("--queue-url is required")
	}
	q, err := c.queue()
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	err = q.Register(func(events []*structs.Event) error {
		for _, e := range events {
			err := enc.Encode(e)
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	go func() {
		exit := make(chan os.Signal, 1)
		signal.Notify(exit, os.Interrupt)
		<-exit
		q.Close()
	}()

	return q.Run()
}
