package parser

import (
	"bytes"
	"fmt"
	"html"

	"github.com/ccass-tracker/internal/types"
)

// RenderDayTable renders records as a CCASS search result page.
// It mirrors the markup ParseDayTable reads and is used to build fixtures.
func RenderDayTable(table types.DayTable) []byte {
	var b bytes.Buffer

	b.WriteString("<html><body><div id=\"pnlResultNormal\"><table class=\"table\"><thead><tr>\n")
	for _, col := range []string{"col-participant-id", "col-participant-name", "col-address", "col-shareholding text-right", "col-shareholding-percent text-right"} {
		fmt.Fprintf(&b, "<th data-column-class=%q>%s</th>\n", col, col)
	}
	b.WriteString("</tr></thead><tbody>\n")

	for _, r := range table {
		b.WriteString("<tr>\n")
		writeCell(&b, "Participant ID:", r.ParticipantID)
		writeCell(&b, "Name of CCASS Participant:", r.ParticipantName)
		writeCell(&b, "Address:", r.Address)
		writeCell(&b, "Shareholding:", fmt.Sprintf("%d", r.Shareholding))
		writeCell(&b, "% of the total number of Issued Shares:", FormatPercent(r.ShareholdingPercent))
		b.WriteString("</tr>\n")
	}

	b.WriteString("</tbody></table></div></body></html>\n")
	return b.Bytes()
}

func writeCell(b *bytes.Buffer, heading, value string) {
	fmt.Fprintf(b, "<td><div class=\"mobile-list-heading\">%s</div><div class=\"mobile-list-body\">%s</div></td>\n",
		html.EscapeString(heading), html.EscapeString(value))
}
