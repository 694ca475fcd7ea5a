package main

import (
	"bytes"
	"fmt"
	"io"
	"slices"
	"strings"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/dustin/go-humanize"
	registryinspector "github.com/eznix86/registry-inspector"
	json "github.com/eznix86/registry-inspector/jsoncompat"
	"github.com/fatih/color"
)

var (
	label   = color.New(color.Bold).SprintFunc()
	dim     = color.New(color.Faint).SprintFunc()
	warning = color.New(color.FgYellow).SprintFunc()
	failed  = color.New(color.FgRed).SprintFunc()
)

// render prints a human readable report of r.
func render(w io.Writer, r *registryinspector.InspectionResult) error {
	p := &printer{w: w}

	p.printf("%s %s\n", label("Image:"), r.Reference)
	p.printf("%s %d\n", label("Schema version:"), r.SchemaVersion)
	p.printf("%s %s\n", label("Image name:"), r.Name)
	p.printf("%s %s\n", label("Tag:"), r.Tag)
	p.printf("%s %s\n", label("Architecture:"), r.Architecture)
	p.printf("%s %s\n", label("Manifest type:"), r.ContentType)
	if r.Digest != "" {
		p.printf("%s %s\n", label("Digest:"), r.Digest)
	}
	if r.Created != nil {
		p.printf("%s %s %s\n", label("Created:"), r.Created.Format(time.RFC3339), dim("("+humanize.Time(*r.Created)+")"))
	}
	p.printf("%s %d\n", label("Number of history entries:"), r.HistoryLength)

	if len(r.Config) > 0 {
		p.printf("%s\n", label("Configuration:"))
		var buf bytes.Buffer
		if err := json.Indent(&buf, r.Config, "  ", "  "); err != nil {
			buf.Reset()
			buf.Write(r.Config)
		}
		p.printf("  %s\n", buf.String())
	}

	switch {
	case r.TagsError != "":
		p.printf("%s %s\n", label("Tags:"), warning("unavailable: "+r.TagsError))
	case len(r.Tags) == 0:
		p.printf("%s %s\n", label("Tags:"), dim("none"))
	default:
		p.printf("%s %d\n", label("Tags:"), len(r.Tags))
		for _, t := range sortTags(r.Tags) {
			p.printf("  %s\n", t)
		}
	}

	p.printf("%s %d\n", label("Number of layers:"), len(r.Layers))
	p.printf("%s\n", label("Layers:"))
	for _, l := range r.Layers {
		switch {
		case l.Err != "":
			p.printf("  %s - %s\n", l.Digest, failed("failed: "+l.Err))
		case !l.Size.Known:
			p.printf("  %s - %s\n", l.Digest, warning("unknown"))
		default:
			p.printf("  %s - %s\n", l.Digest, humanize.Bytes(uint64(l.Size.Bytes)))
		}
	}

	size := humanize.Bytes(uint64(r.TotalSize))
	if n := r.UnknownLayers() + r.FailedLayers(); n > 0 {
		size += " " + dim(fmt.Sprintf("(excluding %d %s)", n, plural(n, "layer", "layers")))
	}
	p.printf("%s %s\n", label("Image size:"), size)

	return p.err
}

func renderJSON(w io.Writer, r *registryinspector.InspectionResult) error {
	b, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "%s\n", b)
	return err
}

// sortTags lists version-like tags newest first, then the others by name.
func sortTags(tags []string) []string {
	type tag struct {
		name    string
		version *semver.Version
	}
	sorted := make([]tag, 0, len(tags))
	for _, t := range tags {
		v, _ := semver.NewVersion(t)
		sorted = append(sorted, tag{name: t, version: v})
	}
	slices.SortStableFunc(sorted, func(a, b tag) int {
		switch {
		case a.version != nil && b.version != nil:
			if c := b.version.Compare(a.version); c != 0 {
				return c
			}
		case a.version != nil:
			return -1
		case b.version != nil:
			return 1
		}
		return strings.Compare(a.name, b.name)
	})

	out := make([]string, len(sorted))
	for i, t := range sorted {
		out[i] = t.name
	}
	return out
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

// printer keeps the first write error so render can check once at the end.
type printer struct {
	w   io.Writer
	err error
}

func (p *printer) printf(format string, args ...any) {
	if p.err != nil {
		return
	}
	_, p.err = fmt.Fprintf(p.w, format, args...)
}
