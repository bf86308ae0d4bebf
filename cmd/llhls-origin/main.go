// Command llhls-origin reads one MPEG-TS program and serves it as a
// low-latency HLS rendition, mirroring the single-process, single-program
// shape of original_source/biim/main.py restructured around the
// teacher's logger/HTTP-server conventions.
package main

import (
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/llhls/origin/internal/conf"
	"github.com/llhls/origin/internal/httpserver"
	"github.com/llhls/origin/internal/logger"
	"github.com/llhls/origin/internal/masterplaylist"
	"github.com/llhls/origin/internal/pipeline"
	"github.com/llhls/origin/internal/tsreader"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	cli, err := conf.ParseCLI(os.Args[1:])
	if err != nil {
		return err
	}

	log := &logger.Logger{
		Level:        logger.Info,
		Destinations: []logger.Destination{logger.DestinationStdout},
	}
	if err := log.Initialize(); err != nil {
		return err
	}
	defer log.Close()

	src, paced, err := tsreader.Open(cli.Input)
	if err != nil {
		return fmt.Errorf("open input: %w", err)
	}

	pl := pipeline.New(pipeline.Config{
		SID:                   cli.SID,
		HasSID:                cli.HasSID(),
		WindowSize:            cli.WindowSize,
		HasWindowSize:         cli.HasWindowSize(),
		TargetDuration90k:     uint64(cli.TargetDuration) * 90000,
		PartTargetDuration90k: uint64(cli.PartDuration * 90000),
		EmitTS:                true,
	}, log)
	defer pl.Close()

	playlistReady := make(chan struct{})
	runDone := make(chan error, 1)

	go func() {
		runDone <- pl.Run(src, paced)
	}()

	go func() {
		for pl.Playlist() == nil {
			time.Sleep(10 * time.Millisecond)
		}
		close(playlistReady)
	}()

	select {
	case <-playlistReady:
	case err := <-runDone:
		if err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
		return fmt.Errorf("input ended before any segment was produced")
	}

	srv := httpserver.New(
		fmt.Sprintf(":%d", cli.Port),
		"*",
		log,
		[]*httpserver.Source{{Name: "live", Playlist: pl.Playlist()}},
		[]masterplaylist.Rendition{{
			URI:        "playlist.m3u8",
			Bandwidth:  2000000,
			Codecs:     pl.CodecsString(),
			Resolution: pl.Resolution(),
		}},
		nil,
	)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("start http server: %w", err)
	}
	defer srv.Close()

	log.Log(logger.Info, "listening on port %d, serving input %q", cli.Port, cli.Input)

	interrupt := make(chan os.Signal, 1)
	signal.Notify(interrupt, os.Interrupt)

	select {
	case <-interrupt:
		log.Log(logger.Info, "shutting down gracefully")
	case err := <-runDone:
		if err != nil {
			return fmt.Errorf("pipeline: %w", err)
		}
		log.Log(logger.Info, "input ended")
	}

	return nil
}
