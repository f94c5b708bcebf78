package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/mrz1836/sigil-bridge/internal/output"
	"github.com/mrz1836/sigil-bridge/internal/page"
	"github.com/mrz1836/sigil-bridge/internal/uri"
	bridgeerr "github.com/mrz1836/sigil-bridge/pkg/errors"
)

const linkTextWidth = 40

// linksCmd is the parent command for link tools.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var linksCmd = &cobra.Command{
	Use:     "links",
	Short:   "Inspect cryptocurrency links in HTML documents",
	Long:    `Find the links the content relay would intercept on a page.`,
	GroupID: groupTools,
}

// linksScanCmd lists the interceptable anchors of a document.
//
//nolint:gochecknoglobals // Cobra CLI pattern requires package-level command variables
var linksScanCmd = &cobra.Command{
	Use:   "scan <file.html>",
	Short: "List interceptable links in an HTML file",
	Long: `Parse an HTML document and list every anchor whose href uses a
recognized cryptocurrency scheme. Clicking these links on a page with the
relay installed opens the wallet instead of navigating. Use "-" to read the
document from stdin.`,
	Example: `  sigil-bridge links scan checkout.html
  curl -s https://shop.example/pay | sigil-bridge links scan - -o json
  sigil-bridge links scan page.html --all`,
	Args: cobra.ExactArgs(1),
	RunE: runLinksScan,
}

//nolint:gochecknoglobals // Cobra CLI pattern requires package-level flag variables
var linksScanAll bool

//nolint:gochecknoinits // Cobra CLI pattern requires init for command registration
func init() {
	rootCmd.AddCommand(linksCmd)
	linksCmd.AddCommand(linksScanCmd)

	linksScanCmd.Flags().BoolVar(&linksScanAll, "all", false, "include links that navigate normally")
}

// ScannedLink is one anchor found by links scan.
type ScannedLink struct {
	Href        string `json:"href"`
	Text        string `json:"text,omitempty"`
	Scheme      string `json:"scheme,omitempty"`
	Intercepted bool   `json:"intercepted"`
	Valid       bool   `json:"valid"`
}

// LinksScanResponse is the JSON shape of links scan.
type LinksScanResponse struct {
	Source      string        `json:"source"`
	Total       int           `json:"total"`
	Intercepted int           `json:"intercepted"`
	Links       []ScannedLink `json:"links"`
}

func runLinksScan(cmd *cobra.Command, args []string) error {
	cc := commandContext(cmd)
	source := args[0]

	var r io.Reader = cmd.InOrStdin()
	if source != "-" {
		f, err := os.Open(source) //nolint:gosec // G304: user-supplied document path is the point of this command
		if err != nil {
			return bridgeerr.WithDetails(bridgeerr.ErrNotFound, map[string]string{"file": source})
		}
		defer func() { _ = f.Close() }()
		r = f
	}

	doc, err := page.ParseDocument(r)
	if err != nil {
		return bridgeerr.Wrap(bridgeerr.ErrInvalidInput, "%s", err.Error())
	}

	schemes := uri.DefaultSchemes().With(cc.Cfg.Relay.Schemes...)
	resp := scanAnchors(source, doc.Anchors(), schemes, linksScanAll)
	cc.Log.Debug("links: %s has %d anchors, %d intercepted", source, resp.Total, resp.Intercepted)

	return cc.Fmt.Result(resp, func(w io.Writer) error {
		if len(resp.Links) == 0 {
			out(w, "No cryptocurrency links in %s (%d anchors)\n", source, resp.Total)
			return nil
		}

		tbl := output.NewTable("SCHEME", "VALID", "ACTION", "TEXT", "HREF")
		tbl.SetMaxWidth(80)
		for _, l := range resp.Links {
			action := "navigate"
			if l.Intercepted {
				action = "wallet"
			}
			valid := "-"
			if l.Intercepted {
				valid = fmt.Sprintf("%t", l.Valid)
			}
			text := l.Text
			if len([]rune(text)) > linkTextWidth {
				text = string([]rune(text)[:linkTextWidth-1]) + "…"
			}
			tbl.AddRow(orNone(l.Scheme), valid, action, text, l.Href)
		}
		if err := tbl.Render(w); err != nil {
			return err
		}
		outln(w)
		out(w, "%d of %d links open the wallet\n", resp.Intercepted, resp.Total)
		return nil
	})
}

// scanAnchors classifies anchors the way the relay's click listener does.
func scanAnchors(source string, anchors []page.Anchor, schemes *uri.Schemes, all bool) LinksScanResponse {
	resp := LinksScanResponse{Source: source, Total: len(anchors), Links: []ScannedLink{}}
	for _, a := range anchors {
		base, ok := schemes.Match(a.Href)
		if !ok && !all {
			continue
		}

		l := ScannedLink{Href: a.Href, Text: a.Text, Scheme: base, Intercepted: ok}
		if ok {
			resp.Intercepted++
			if p, err := uri.Parse(a.Href, schemes); err == nil {
				l.Valid = p.Validate() == nil
			}
		} else if s, found := uri.SchemeOf(a.Href); found {
			l.Scheme = s
		}
		resp.Links = append(resp.Links, l)
	}
	return resp
}
