// Command pdfredact inspects PDF files, removes text, images and
// annotations from them, and verifies the result.
//
// Usage:
//
//	pdfredact info report.pdf
//	pdfredact search report.pdf 'jane@example.com'
//	pdfredact redact report.pdf -o clean.pdf --search 'jane@example.com'
//	pdfredact redact report.pdf -o clean.pdf --spec redactions.yaml
//	pdfredact verify report.pdf clean.pdf --term 'jane@example.com'
//	pdfredact serve
//
// Defaults are read from $XDG_CONFIG_HOME/pdfredact/config.yaml.
package main

func main() {
	Execute()
}
