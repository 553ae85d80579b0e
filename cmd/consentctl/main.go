package main

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"time"

	"xdao.co/consent/client"
	"xdao.co/consent/consent"
	"xdao.co/consent/journal/grpcjournal"
	"xdao.co/consent/keys"
	"xdao.co/consent/proofs"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		printUsage(errOut)
		return 2
	}

	switch args[0] {
	case "key":
		return cmdKey(args[1:], out, errOut)
	case "allow":
		return cmdRecord(args[1:], out, errOut, true)
	case "deny":
		return cmdRecord(args[1:], out, errOut, false)
	case "state":
		return cmdState(args[1:], out, errOut)
	case "list":
		return cmdList(args[1:], out, errOut)
	case "watch":
		return cmdWatch(args[1:], out, errOut)
	case "proof":
		return cmdProof(args[1:], out, errOut)
	case "help", "-h", "--help":
		printUsage(out)
		return 0
	default:
		fmt.Fprintf(errOut, "unknown command: %s\n\n", args[0])
		printUsage(errOut)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "consentctl: consent journal CLI")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage:")
	fmt.Fprintln(w, "  consentctl key init --name <name> [--seed-hex <64hex>] [--force]")
	fmt.Fprintln(w, "  consentctl key derive --from <name> --session <session> [--force]")
	fmt.Fprintln(w, "  consentctl key list")
	fmt.Fprintln(w, "  consentctl key export --name <name> [--session <session>]")
	fmt.Fprintln(w, "  consentctl allow --server <addr> <signer flags> <peer> [<peer> ...]")
	fmt.Fprintln(w, "  consentctl deny --server <addr> <signer flags> <peer> [<peer> ...]")
	fmt.Fprintln(w, "  consentctl state --server <addr> <signer flags> <peer>")
	fmt.Fprintln(w, "  consentctl list --server <addr> <signer flags> [--history]")
	fmt.Fprintln(w, "  consentctl watch --server <addr> <signer flags>")
	fmt.Fprintln(w, "  consentctl proof create --peer <addr> <signer flags> [--timestamp <ms>]")
	fmt.Fprintln(w, "  consentctl proof verify --peer <addr> --signer-address <addr> <proof.json>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Signer flags (one of):")
	fmt.Fprintln(w, "  --seed-hex <64hex>      literal secp256k1 seed")
	fmt.Fprintln(w, "  --signer <name> [--signer-session <session>]  stored key")
	fmt.Fprintln(w, "  --key-file <path>       seed file")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Notes:")
	fmt.Fprintln(w, "  - keys are stored under ~/.xdao/consent/keys (0600 seed files)")
	fmt.Fprintln(w, "  - allow/deny publish to the signer's own journal on the server")
	fmt.Fprintln(w, "  - proof create writes canonical proof JSON to stdout")
}

type signerFlags struct {
	seedHex string
	name    string
	session string
	keyFile string
}

func (s *signerFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&s.seedHex, "seed-hex", "", "literal hex seed")
	fs.StringVar(&s.name, "signer", "", "stored key name")
	fs.StringVar(&s.session, "signer-session", "", "stored session key")
	fs.StringVar(&s.keyFile, "key-file", "", "seed file path")
}

func (s *signerFlags) load() (*keys.LocalSigner, error) {
	ks, err := keys.CreateKeyStore("")
	if err != nil {
		return nil, err
	}
	return ks.LoadSigner(s.seedHex, s.name, s.session, s.keyFile)
}

func dialClient(server string, signer keys.Signer) (*client.Client, func(), error) {
	jc, err := grpcjournal.Dial(server, signer, grpcjournal.DialOptions{Timeout: 10 * time.Second})
	if err != nil {
		return nil, nil, err
	}
	jc.Timeout = 10 * time.Second
	c, err := client.New(signer, jc)
	if err != nil {
		_ = jc.Close()
		return nil, nil, err
	}
	return c, func() { _ = jc.Close() }, nil
}

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: consentctl key <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: init, derive, list, export")
		return 2
	}
	ks, err := keys.CreateKeyStore("")
	if err != nil {
		fmt.Fprintf(errOut, "keystore: %v\n", err)
		return 1
	}

	switch args[0] {
	case "init":
		fs := flag.NewFlagSet("key init", flag.ContinueOnError)
		fs.SetOutput(errOut)
		name := fs.String("name", "", "key name")
		seedHex := fs.String("seed-hex", "", "literal hex seed (generated when absent)")
		force := fs.Bool("force", false, "overwrite an existing key")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if *name == "" {
			fmt.Fprintln(errOut, "usage: consentctl key init --name <name> [--seed-hex <64hex>] [--force]")
			return 2
		}
		seed := make([]byte, keys.SeedSize)
		if *seedHex != "" {
			var err error
			seed, err = keys.ParseSeedHex(*seedHex)
			if err != nil {
				fmt.Fprintf(errOut, "seed: %v\n", err)
				return 1
			}
		} else if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "seed: %v\n", err)
			return 1
		}
		addr, path, err := ks.InitializeRootKey(*name, seed, *force)
		if err != nil {
			fmt.Fprintf(errOut, "key init: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "%s\t%s\n", addr, path)
		return 0

	case "derive":
		fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
		fs.SetOutput(errOut)
		from := fs.String("from", "", "root key name")
		session := fs.String("session", "", "session name")
		force := fs.Bool("force", false, "overwrite an existing session key")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if *from == "" || *session == "" {
			fmt.Fprintln(errOut, "usage: consentctl key derive --from <name> --session <session> [--force]")
			return 2
		}
		addr, path, err := ks.DeriveSessionKey(*from, *session, *force)
		if err != nil {
			fmt.Fprintf(errOut, "key derive: %v\n", err)
			return 1
		}
		fmt.Fprintf(out, "%s\t%s\n", addr, path)
		return 0

	case "list":
		entries, err := ks.ListKeys()
		if err != nil {
			fmt.Fprintf(errOut, "key list: %v\n", err)
			return 1
		}
		for _, e := range entries {
			fmt.Fprintln(out, e.Identifier)
			for _, s := range e.Sessions {
				fmt.Fprintf(out, "  %s\n", s)
			}
		}
		return 0

	case "export":
		fs := flag.NewFlagSet("key export", flag.ContinueOnError)
		fs.SetOutput(errOut)
		name := fs.String("name", "", "key name")
		session := fs.String("session", "", "session name")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if *name == "" {
			fmt.Fprintln(errOut, "usage: consentctl key export --name <name> [--session <session>]")
			return 2
		}
		addr, err := ks.ExportAddress(*name, *session)
		if err != nil {
			fmt.Fprintf(errOut, "key export: %v\n", err)
			return 1
		}
		fmt.Fprintln(out, addr)
		return 0

	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n", args[0])
		return 2
	}
}

func cmdRecord(args []string, out io.Writer, errOut io.Writer, allow bool) int {
	verb := "deny"
	if allow {
		verb = "allow"
	}
	fs := flag.NewFlagSet(verb, flag.ContinueOnError)
	fs.SetOutput(errOut)
	server := fs.String("server", "127.0.0.1:7707", "journal server address")
	var sf signerFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	peers := fs.Args()
	if len(peers) == 0 {
		fmt.Fprintf(errOut, "usage: consentctl %s --server <addr> <signer flags> <peer> [<peer> ...]\n", verb)
		return 2
	}

	signer, err := sf.load()
	if err != nil {
		fmt.Fprintf(errOut, "signer: %v\n", err)
		return 1
	}
	c, closeFn, err := dialClient(*server, signer)
	if err != nil {
		fmt.Fprintf(errOut, "dial: %v\n", err)
		return 1
	}
	defer closeFn()

	ctx := context.Background()
	if allow {
		err = c.Allow(ctx, peers...)
	} else {
		err = c.Deny(ctx, peers...)
	}
	if err != nil {
		fmt.Fprintf(errOut, "%s: %v\n", verb, err)
		return 1
	}
	for _, p := range peers {
		fmt.Fprintf(out, "%s\t%s\n", consent.Normalize(p), verb)
	}
	return 0
}

func cmdState(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("state", flag.ContinueOnError)
	fs.SetOutput(errOut)
	server := fs.String("server", "127.0.0.1:7707", "journal server address")
	var sf signerFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(errOut, "usage: consentctl state --server <addr> <signer flags> <peer>")
		return 2
	}

	signer, err := sf.load()
	if err != nil {
		fmt.Fprintf(errOut, "signer: %v\n", err)
		return 1
	}
	c, closeFn, err := dialClient(*server, signer)
	if err != nil {
		fmt.Fprintf(errOut, "dial: %v\n", err)
		return 1
	}
	defer closeFn()

	if _, err := c.RefreshConsentList(context.Background()); err != nil {
		fmt.Fprintf(errOut, "refresh: %v\n", err)
		return 1
	}
	fmt.Fprintln(out, c.ConsentState(fs.Arg(0)))
	return 0
}

func cmdList(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	fs.SetOutput(errOut)
	server := fs.String("server", "127.0.0.1:7707", "journal server address")
	history := fs.Bool("history", false, "print the raw ordered history instead of folded state")
	var sf signerFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	signer, err := sf.load()
	if err != nil {
		fmt.Fprintf(errOut, "signer: %v\n", err)
		return 1
	}
	c, closeFn, err := dialClient(*server, signer)
	if err != nil {
		fmt.Fprintf(errOut, "dial: %v\n", err)
		return 1
	}
	defer closeFn()

	entries, err := c.RefreshConsentList(context.Background())
	if err != nil {
		fmt.Fprintf(errOut, "refresh: %v\n", err)
		return 1
	}

	if *history {
		for _, e := range entries {
			fmt.Fprintf(out, "%s\t%s\n", e.Value, e.Permission)
		}
		return 0
	}

	folded := consent.NewStore()
	folded.Apply(entries)
	snapshot := folded.Snapshot()
	peers := make([]string, 0, len(snapshot))
	for p := range snapshot {
		peers = append(peers, p)
	}
	sort.Strings(peers)
	for _, p := range peers {
		fmt.Fprintf(out, "%s\t%s\n", p, snapshot[p])
	}
	return 0
}

func cmdWatch(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("watch", flag.ContinueOnError)
	fs.SetOutput(errOut)
	server := fs.String("server", "127.0.0.1:7707", "journal server address")
	var sf signerFlags
	sf.register(fs)
	if err := fs.Parse(args); err != nil {
		return 2
	}

	signer, err := sf.load()
	if err != nil {
		fmt.Fprintf(errOut, "signer: %v\n", err)
		return 1
	}
	c, closeFn, err := dialClient(*server, signer)
	if err != nil {
		fmt.Fprintf(errOut, "dial: %v\n", err)
		return 1
	}
	defer closeFn()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	sub, err := c.StreamConsentList(ctx)
	if err != nil {
		fmt.Fprintf(errOut, "subscribe: %v\n", err)
		return 1
	}
	defer sub.Close()

	fmt.Fprintf(errOut, "watching consent journal of %s (interrupt to stop)\n", c.Address())
	for {
		select {
		case e, ok := <-sub.C():
			if !ok {
				if err := sub.Err(); err != nil {
					fmt.Fprintf(errOut, "stream: %v\n", err)
					return 1
				}
				return 0
			}
			fmt.Fprintf(out, "%s\t%s\n", e.Value, e.Permission)
		case <-ctx.Done():
			return 0
		}
	}
}

func cmdProof(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: consentctl proof <subcommand> ...")
		fmt.Fprintln(errOut, "subcommands: create, verify")
		return 2
	}
	switch args[0] {
	case "create":
		fs := flag.NewFlagSet("proof create", flag.ContinueOnError)
		fs.SetOutput(errOut)
		peer := fs.String("peer", "", "peer address the consent is granted to")
		timestamp := fs.Int64("timestamp", 0, "signed timestamp in ms (defaults to now)")
		var sf signerFlags
		sf.register(fs)
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if *peer == "" {
			fmt.Fprintln(errOut, "usage: consentctl proof create --peer <addr> <signer flags> [--timestamp <ms>]")
			return 2
		}
		signer, err := sf.load()
		if err != nil {
			fmt.Fprintf(errOut, "signer: %v\n", err)
			return 1
		}
		ts := *timestamp
		if ts == 0 {
			ts = time.Now().UnixMilli()
		}
		proof, err := proofs.Sign(signer, *peer, ts)
		if err != nil {
			fmt.Fprintf(errOut, "proof create: %v\n", err)
			return 1
		}
		b, err := json.Marshal(proof)
		if err != nil {
			fmt.Fprintf(errOut, "proof create: %v\n", err)
			return 1
		}
		fmt.Fprintln(out, string(b))
		return 0

	case "verify":
		fs := flag.NewFlagSet("proof verify", flag.ContinueOnError)
		fs.SetOutput(errOut)
		peer := fs.String("peer", "", "peer address the consent was granted to")
		signerAddr := fs.String("signer-address", "", "expected signer identity")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		if *peer == "" || *signerAddr == "" || fs.NArg() != 1 {
			fmt.Fprintln(errOut, "usage: consentctl proof verify --peer <addr> --signer-address <addr> <proof.json>")
			return 2
		}
		b, err := os.ReadFile(fs.Arg(0))
		if err != nil {
			fmt.Fprintf(errOut, "read proof: %v\n", err)
			return 1
		}
		var proof proofs.Proof
		if err := json.Unmarshal(b, &proof); err != nil {
			fmt.Fprintf(errOut, "invalid proof: %v\n", err)
			return 1
		}
		if !proofs.Verify(proof, *peer, *signerAddr) {
			fmt.Fprintln(out, "invalid")
			return 1
		}
		fmt.Fprintln(out, "valid")
		return 0

	default:
		fmt.Fprintf(errOut, "unknown proof subcommand: %s\n", args[0])
		return 2
	}
}
