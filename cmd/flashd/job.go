package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/voidshard/flashd/pkg/api/http/client"
	"github.com/voidshard/flashd/pkg/structs"
)

const (
	docJobCreate     = `Schedule a build & deploy of a device config`
	docJobList       = `List jobs`
	docJobGet        = `Show a job`
	docJobDelete     = `Delete a job & it's workspace`
	docJobReschedule = `Schedule a job to run again`
)

type optsClient struct {
	API string `long:"api" env:"FLASHD_API" default:"http://127.0.0.1:8080" description:"Address of a flashd API server"`
}

func (o *optsClient) client() (*client.Client, error) {
	return client.New(o.API)
}

type optsWhen struct {
	At string        `long:"at" description:"When to run, RFC3339 (ie. 2024-06-01T03:00:00+01:00)"`
	In time.Duration `long:"in" description:"When to run, relative to now (ie. 2h30m)"`
}

func (o *optsWhen) unix() (int64, error) {
	switch {
	case o.At != "" && o.In != 0:
		return 0, fmt.Errorf("only one of --at or --in may be given")
	case o.At != "":
		t, err := time.Parse(time.RFC3339, o.At)
		if err != nil {
			return 0, err
		}
		return t.Unix(), nil
	case o.In > 0:
		return time.Now().Add(o.In).Unix(), nil
	default:
		return 0, fmt.Errorf("one of --at or --in is required")
	}
}

type optsJobCreate struct {
	optsClient
	optsWhen

	Source      string `long:"source" short:"s" required:"true" description:"Path to the device config"`
	Target      string `long:"target" short:"t" required:"true" description:"Device address or serial port"`
	Transport   string `long:"transport" default:"NETWORK" choice:"NETWORK" choice:"WIRED" description:"How the firmware is deployed"`
	Filename    string `long:"filename" description:"Display name (default: the config's file name)"`
	Builder     string `long:"builder" description:"Builder id selecting the esphome version"`
	CompileNow  bool   `long:"compile-now" description:"Build when the job is created rather than when it's dispatched"`
	BatchID     string `long:"batch" description:"Add the job to this batch"`
	BatchCreate string `long:"new-batch" description:"Create a batch with this name & add the job to it"`
}

func (c *optsJobCreate) Execute(args []string) error {
	at, err := c.unix()
	if err != nil {
		return err
	}
	source, err := filepath.Abs(c.Source)
	if err != nil {
		return err
	}

	cli, err := c.client()
	if err != nil {
		return err
	}

	req := &structs.CreateJobRequest{JobSpec: structs.JobSpec{
		SourcePath:    source,
		Filename:      c.Filename,
		Target:        c.Target,
		Transport:     structs.TransportMode(strings.ToUpper(c.Transport)),
		ScheduledAt:   at,
		CompilePolicy: structs.CompileAtDispatch,
		BuilderID:     c.Builder,
	}}
	if c.CompileNow {
		req.CompilePolicy = structs.CompileImmediately
	}

	job, err := cli.CreateJob(req)
	if err != nil {
		return err
	}

	batchID := c.BatchID
	if c.BatchCreate != "" {
		batch, err := cli.CreateBatch(&structs.CreateBatchRequest{BatchSpec: structs.BatchSpec{Name: c.BatchCreate}})
		if err != nil {
			return err
		}
		batchID = batch.ID
	}
	if batchID != "" {
		_, err = cli.AddToBatch(batchID, &structs.AddToBatchRequest{JobIDs: []string{job.ID}})
		if err != nil {
			return err
		}
	}

	return printJson(job)
}

type optsJobList struct {
	optsClient

	All      bool     `long:"all" description:"Include completed & failed jobs"`
	Statuses []string `long:"status" description:"Only jobs with this status (repeatable)"`
	BatchID  string   `long:"batch" description:"Only jobs in this batch"`
	Limit    int      `long:"limit" default:"100" description:"Max jobs to list"`
	Offset   int      `long:"offset" description:"Jobs to skip"`
}

func (c *optsJobList) Execute(args []string) error {
	cli, err := c.client()
	if err != nil {
		return err
	}

	q := &structs.Query{Limit: c.Limit, Offset: c.Offset}
	for _, s := range c.Statuses {
		st := structs.ToStatus(s)
		if st == "" {
			return fmt.Errorf("unknown status %s", s)
		}
		q.Statuses = append(q.Statuses, st)
	}
	if q.Statuses == nil && !c.All {
		q.Statuses = []structs.Status{structs.SCHEDULED, structs.PROCESSING}
	}
	if c.BatchID != "" {
		q.BatchIDs = []string{c.BatchID}
	}

	jobs, err := cli.Jobs(q)
	if err != nil {
		return err
	}
	return printJson(jobs)
}

type optsJobGet struct {
	optsClient

	Args struct {
		ID string `positional-arg-name:"job-id" required:"true"`
	} `positional-args:"true"`
}

func (c *optsJobGet) Execute(args []string) error {
	cli, err := c.client()
	if err != nil {
		return err
	}
	job, err := cli.Job(c.Args.ID)
	if err != nil {
		return err
	}
	return printJson(job)
}

type optsJobDelete struct {
	optsClient

	Args struct {
		IDs []string `positional-arg-name:"job-id" required:"1"`
	} `positional-args:"true"`
}

func (c *optsJobDelete) Execute(args []string) error {
	cli, err := c.client()
	if err != nil {
		return err
	}
	for _, id := range c.Args.IDs {
		err = cli.DeleteJob(id)
		if err != nil {
			return fmt.Errorf("deleting %s: %w", id, err)
		}
	}
	return nil
}

type optsJobReschedule struct {
	optsClient
	optsWhen

	Args struct {
		ID string `positional-arg-name:"job-id" required:"true"`
	} `positional-args:"true"`
}

func (c *optsJobReschedule) Execute(args []string) error {
	at, err := c.unix()
	if err != nil {
		return err
	}
	cli, err := c.client()
	if err != nil {
		return err
	}
	job, err := cli.Reschedule(c.Args.ID, &structs.RescheduleRequest{ScheduledAt: at})
	if err != nil {
		return err
	}
	return printJson(job)
}

func printJson(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
