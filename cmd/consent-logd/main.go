package main

import (
	"flag"
	"fmt"
	"net"
	"os"

	"google.golang.org/grpc"

	"xdao.co/consent/journal"
	"xdao.co/consent/journal/filejournal"
	"xdao.co/consent/journal/grpcjournal"
	"xdao.co/consent/journal/memjournal"
)

func main() {
	fs := flag.NewFlagSet("consent-logd", flag.ExitOnError)
	listen := fs.String("listen", "127.0.0.1:7707", "listen address")
	backend := fs.String("backend", "mem", "journal backend: mem or file")
	dir := fs.String("dir", "", "data directory for the file backend")

	_ = fs.Parse(os.Args[1:])

	j, err := openBackend(*backend, *dir)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	lis, err := net.Listen("tcp", *listen)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer lis.Close()

	s := grpc.NewServer()
	grpcjournal.RegisterJournalServer(s, &grpcjournal.Server{Journal: j})

	fmt.Fprintf(os.Stderr, "consent-logd listening on %s (backend=%s)\n", lis.Addr().String(), *backend)
	if err := s.Serve(lis); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func openBackend(name, dir string) (journal.Journal, error) {
	switch name {
	case "mem":
		return memjournal.New(), nil
	case "file":
		if dir == "" {
			return nil, fmt.Errorf("consent-logd: the file backend requires -dir")
		}
		return filejournal.New(dir)
	default:
		return nil, fmt.Errorf("consent-logd: unknown backend %q (want mem or file)", name)
	}
}
