// Package bundle packs archive objects into a deterministic TAR file so an
// audit chain can be carried offline and re-verified elsewhere.
//
// Layout:
//
//	blocks/<cid>   raw object bytes, one entry per CID in lexicographic order
//	index.json     canonical index (optional): block sizes and named labels
package bundle

import (
	"archive/tar"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/ipfs/go-cid"

	"xdao.co/ledgercore/audit"
	"xdao.co/ledgercore/canonical"
	"xdao.co/ledgercore/cidutil"
	"xdao.co/ledgercore/storage"
)

// FormatVersion is the current index schema version.
const FormatVersion = 1

// LabelManifest names the checkpoint manifest in a chain bundle.
const LabelManifest = "manifest"

const indexPath = "index.json"

var epoch0 = time.Unix(0, 0).UTC()

type ExportOptions struct {
	// Labels are non-authoritative names for CIDs carried in the index.
	Labels map[string]cid.Cid
	// IncludeIndex controls whether index.json is written.
	IncludeIndex bool
}

// Index is the decoded index.json of a bundle.
type Index struct {
	Version int
	Blocks  map[string]uint64
	Labels  map[string]cid.Cid
}

// Export writes the objects for ids to w. Output bytes depend only on the
// set of objects and the options; every object is re-hashed on the way out.
func Export(w io.Writer, cas storage.CAS, ids []cid.Cid, opts ExportOptions) error {
	if cas == nil {
		return fmt.Errorf("bundle: nil CAS")
	}

	uniq := make(map[string]cid.Cid, len(ids))
	for _, id := range ids {
		if !id.Defined() {
			return storage.ErrInvalidCID
		}
		uniq[id.String()] = id
	}
	names := make([]string, 0, len(uniq))
	for s := range uniq {
		names = append(names, s)
	}
	sort.Strings(names)

	tw := tar.NewWriter(w)
	fail := func(err error) error {
		_ = tw.Close()
		return err
	}

	blocks := make(map[string]any, len(names))
	for _, s := range names {
		id := uniq[s]
		b, err := cas.Get(id)
		if err != nil {
			return fail(fmt.Errorf("bundle: %s: %w", s, err))
		}
		if !cidutil.Matches(id, b) {
			return fail(storage.ErrCIDMismatch)
		}
		if err := writeFile(tw, "blocks/"+s, b); err != nil {
			return fail(err)
		}
		blocks[s] = uint64(len(b))
	}

	if opts.IncludeIndex {
		labels := make(map[string]any, len(opts.Labels))
		for k, v := range opts.Labels {
			if k == "" {
				return fail(fmt.Errorf("bundle: empty label key"))
			}
			if !v.Defined() {
				return fail(storage.ErrInvalidCID)
			}
			labels[k] = v.String()
		}
		b, err := canonical.Encode(map[string]any{
			"blocks":    blocks,
			"cid_codec": "raw",
			"labels":    labels,
			"multihash": "sha2-256",
			"version":   uint64(FormatVersion),
		})
		if err != nil {
			return fail(err)
		}
		if err := writeFile(tw, indexPath, b); err != nil {
			return fail(err)
		}
	}
	return tw.Close()
}

// ExportChain bundles a checkpoint manifest together with every entry it
// lists, labelled so ImportChain can find the manifest again.
func ExportChain(w io.Writer, cas storage.CAS, manifest cid.Cid) error {
	m, err := audit.LoadManifest(cas, manifest)
	if err != nil {
		return err
	}
	ids := append([]cid.Cid{manifest}, m.Entries...)
	return Export(w, cas, ids, ExportOptions{
		IncludeIndex: true,
		Labels:       map[string]cid.Cid{LabelManifest: manifest},
	})
}

type ImportOptions struct {
	// IgnoreUnknown skips unknown TAR entries instead of failing.
	IgnoreUnknown bool
}

// Import reads a bundle into cas, failing closed on unknown entries.
func Import(r io.Reader, cas storage.CAS) (Index, error) {
	return ImportWithOptions(r, cas, ImportOptions{})
}

// ImportWithOptions checks every block against both its file name and its
// content hash before writing it to cas.
func ImportWithOptions(r io.Reader, cas storage.CAS, opts ImportOptions) (Index, error) {
	var idx Index
	if cas == nil {
		return idx, fmt.Errorf("bundle: nil CAS")
	}

	tr := tar.NewReader(r)
	seen := map[string]struct{}{}
	for {
		h, err := tr.Next()
		if err == io.EOF {
			return idx, nil
		}
		if err != nil {
			return idx, err
		}
		name := cleanTarPath(h.Name)
		if name == "" {
			return idx, fmt.Errorf("bundle: invalid entry path: %q", h.Name)
		}
		if h.Typeflag != tar.TypeReg {
			if opts.IgnoreUnknown {
				continue
			}
			return idx, fmt.Errorf("bundle: unexpected tar entry type: %v (%s)", h.Typeflag, name)
		}

		if name == indexPath {
			b, err := io.ReadAll(tr)
			if err != nil {
				return idx, err
			}
			if idx, err = parseIndex(b); err != nil {
				return idx, err
			}
			continue
		}
		if !strings.HasPrefix(name, "blocks/") {
			if opts.IgnoreUnknown {
				continue
			}
			return idx, fmt.Errorf("bundle: unknown entry: %s", name)
		}

		id, err := cidutil.Parse(strings.TrimPrefix(name, "blocks/"))
		if err != nil {
			return idx, storage.ErrInvalidCID
		}
		payload, err := io.ReadAll(tr)
		if err != nil {
			return idx, err
		}
		if !cidutil.Matches(id, payload) {
			return idx, storage.ErrCIDMismatch
		}
		if _, dup := seen[id.String()]; dup {
			return idx, fmt.Errorf("bundle: duplicate block entry: %s", id)
		}
		seen[id.String()] = struct{}{}

		putID, err := cas.Put(payload)
		if err != nil {
			return idx, err
		}
		if !putID.Equals(id) {
			return idx, storage.ErrCIDMismatch
		}
	}
}

// ImportChain imports a chain bundle and replays it from the imported copy.
func ImportChain(r io.Reader, cas storage.CAS, opts ...audit.Option) (*audit.Chain, cid.Cid, error) {
	idx, err := Import(r, cas)
	if err != nil {
		return nil, cid.Undef, err
	}
	manifest, ok := idx.Labels[LabelManifest]
	if !ok {
		return nil, cid.Undef, fmt.Errorf("bundle: no %q label in index", LabelManifest)
	}
	chain, err := audit.Replay(cas, manifest, opts...)
	if err != nil {
		return nil, manifest, err
	}
	return chain, manifest, nil
}

func parseIndex(b []byte) (Index, error) {
	var idx Index
	doc, err := canonical.Decode(b)
	if err != nil {
		return idx, fmt.Errorf("bundle: index: %w", err)
	}
	m, ok := doc.(map[string]any)
	if !ok {
		return idx, fmt.Errorf("bundle: index is not an object")
	}
	v, _ := m["version"].(json.Number)
	n, err := strconv.Atoi(string(v))
	if err != nil || n != FormatVersion {
		return idx, fmt.Errorf("bundle: unsupported index version %q", v)
	}
	idx.Version = n

	blocks, _ := m["blocks"].(map[string]any)
	idx.Blocks = make(map[string]uint64, len(blocks))
	for k, raw := range blocks {
		size, _ := raw.(json.Number)
		s, err := strconv.ParseUint(string(size), 10, 64)
		if err != nil {
			return idx, fmt.Errorf("bundle: index size for %s: %w", k, err)
		}
		idx.Blocks[k] = s
	}

	labels, _ := m["labels"].(map[string]any)
	idx.Labels = make(map[string]cid.Cid, len(labels))
	for k, raw := range labels {
		s, _ := raw.(string)
		id, err := cidutil.Parse(s)
		if err != nil {
			return idx, fmt.Errorf("bundle: label %q: %w", k, err)
		}
		idx.Labels[k] = id
	}
	return idx, nil
}

func writeFile(tw *tar.Writer, name string, content []byte) error {
	hdr := &tar.Header{
		Name:     name,
		Mode:     0o644,
		Size:     int64(len(content)),
		ModTime:  epoch0,
		Typeflag: tar.TypeReg,
		Format:   tar.FormatUSTAR,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err := io.Copy(tw, bytes.NewReader(content))
	return err
}

func cleanTarPath(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ReplaceAll(name, "\\", "/")
	name = strings.TrimPrefix(name, "./")
	name = strings.TrimPrefix(name, "/")
	if name == "" {
		return ""
	}
	parts := strings.Split(name, "/")
	for _, part := range parts {
		if part == "" || part == "." || part == ".." {
			return ""
		}
	}
	return name
}
