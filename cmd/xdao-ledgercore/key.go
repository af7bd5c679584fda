package main

import (
	"crypto/rand"
	"flag"
	"fmt"
	"io"

	"xdao.co/ledgercore/pqc"
)

func cmdKey(args []string, out io.Writer, errOut io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(errOut, "usage: xdao-ledgercore key <init|derive> ...")
		return 2
	}
	switch args[0] {
	case "init":
		return cmdKeyInit(args[1:], out, errOut)
	case "derive":
		return cmdKeyDerive(args[1:], out, errOut)
	default:
		fmt.Fprintf(errOut, "unknown key subcommand: %s\n", args[0])
		return 2
	}
}

func cmdKeyInit(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key init", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var outPath, seedHex string
	var force bool
	fs.StringVar(&outPath, "out", "", "Seed file to write")
	fs.StringVar(&seedHex, "seed-hex", "", "Use this hex seed instead of generating one")
	fs.BoolVar(&force, "force", false, "Overwrite an existing seed file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if outPath == "" {
		fmt.Fprintln(errOut, "missing --out")
		return 2
	}

	var seed []byte
	if seedHex != "" {
		var err error
		if seed, err = pqc.ParseSeedHex(seedHex); err != nil {
			fmt.Fprintf(errOut, "invalid --seed-hex: %v\n", err)
			return 2
		}
	} else {
		seed = make([]byte, 32)
		if _, err := rand.Read(seed); err != nil {
			fmt.Fprintf(errOut, "generate seed: %v\n", err)
			return 1
		}
	}
	defer clear(seed)

	if err := pqc.SaveSeedFile(outPath, seed, force); err != nil {
		fmt.Fprintf(errOut, "write seed: %v\n", err)
		return 1
	}
	fmt.Fprintf(out, "wrote %s\n", outPath)
	fmt.Fprintf(out, "seed_hash %s\n", pqc.SeedHash(seed))
	return 0
}

func cmdKeyDerive(args []string, out io.Writer, errOut io.Writer) int {
	fs := flag.NewFlagSet("key derive", flag.ContinueOnError)
	fs.SetOutput(errOut)
	var seedFile, role string
	fs.StringVar(&seedFile, "seed-file", "", "Root seed file")
	fs.StringVar(&role, "role", "engine", "Signing role")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if seedFile == "" {
		fmt.Fprintln(errOut, "missing --seed-file")
		return 2
	}

	root, err := pqc.LoadSeedFile(seedFile)
	if err != nil {
		fmt.Fprintf(errOut, "load seed: %v\n", err)
		return 1
	}
	defer clear(root)
	seed, err := pqc.DeriveSeed(root, role)
	if err != nil {
		fmt.Fprintf(errOut, "derive: %v\n", err)
		return 2
	}
	defer clear(seed)

	var signer pqc.Signer = pqc.Dilithium3{}
	kp, err := signer.GenerateKeypair(seed)
	if err != nil {
		fmt.Fprintf(errOut, "keygen: %v\n", err)
		return 1
	}
	defer kp.Zeroize()

	fmt.Fprintf(out, "algorithm %s\n", signer.Algorithm())
	fmt.Fprintf(out, "role %s\n", role)
	fmt.Fprintf(out, "seed_hash %s\n", kp.SeedHash)
	fmt.Fprintf(out, "public_key %s\n", kp.PublicHex())
	return 0
}
