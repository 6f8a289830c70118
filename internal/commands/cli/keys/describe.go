package keys

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/andrei-cloud/go_atalla/pkg/akb"
)

type meaning struct {
	code string
	text string
}

var (
	versionMeanings = []meaning{
		{"1", "DES/3DES key block"},
	}
	usageMeanings = []meaning{
		{string(akb.UsageCardVerify), "Card verification key (CVV/CVC)"},
		{string(akb.UsageData), "Data encryption key"},
		{string(akb.UsageEMVMaster), "EMV issuer master key"},
		{string(akb.UsageKeyEncryption), "Key encryption key"},
		{string(akb.UsageMAC), "MAC key"},
		{string(akb.UsagePINEncryption), "PIN encryption key"},
		{string(akb.UsagePINVerification), "PIN verification key (IBM 3624, Visa PVV)"},
	}
	algorithmMeanings = []meaning{
		{"D", "DES / Triple DES"},
	}
	modeMeanings = []meaning{
		{"B", "Encrypt and decrypt"},
		{"D", "Decrypt only"},
		{"E", "Encrypt only"},
		{"G", "Generate only"},
		{"N", "No special restrictions"},
		{"V", "Verify only"},
	}
	exportMeanings = []meaning{
		{"E", "Exportable"},
		{"N", "Non-exportable"},
		{"S", "Sensitive, exportable under a trusted key only"},
	}
)

func lookup(meanings []meaning, b byte) string {
	for _, m := range meanings {
		if m.code == string(b) {
			return m.text
		}
	}

	return "Unknown"
}

// describeHeader prints the header fields as a table.
func describeHeader(out io.Writer, h akb.Header) error {
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "Offset\tField\tValue\tMeaning")
	fmt.Fprintf(w, "0\tVersion\t%c\t%s\n", h.Version, lookup(versionMeanings, h.Version))
	fmt.Fprintf(w, "1\tKey usage\t%c\t%s\n", h.KeyUsage, lookup(usageMeanings, h.KeyUsage))
	fmt.Fprintf(w, "2\tAlgorithm\t%c\t%s\n", h.Algorithm, lookup(algorithmMeanings, h.Algorithm))
	fmt.Fprintf(w, "3\tMode of use\t%c\t%s\n", h.ModeOfUse, lookup(modeMeanings, h.ModeOfUse))
	fmt.Fprintf(w, "4\tExportability\t%c\t%s\n", h.Exportability, lookup(exportMeanings, h.Exportability))
	fmt.Fprintf(w, "5-7\tReserved\t%s\t\n", h.Reserved)

	return w.Flush()
}
