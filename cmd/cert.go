package cmd

import (
	"crypto/x509"
	"encoding/pem"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/otherjamesbrown/mentionkit/config"
	"github.com/otherjamesbrown/mentionkit/pkg/mentions/fetch"
)

// Warning threshold for certificate expiration.
const expiryWarningDays = 30

// CertInfo describes one certificate file.
type CertInfo struct {
	Path       string    `json:"path" yaml:"path"`
	Subject    string    `json:"subject" yaml:"subject"`
	Issuer     string    `json:"issuer" yaml:"issuer"`
	ValidFrom  time.Time `json:"valid_from" yaml:"valid_from"`
	ValidTo    time.Time `json:"valid_to" yaml:"valid_to"`
	DaysUntil  int       `json:"days_until_expiry" yaml:"days_until_expiry"`
	IsExpired  bool      `json:"is_expired" yaml:"is_expired"`
	IsExpiring bool      `json:"is_expiring" yaml:"is_expiring"`
}

// CertReport is the output of cert show.
type CertReport struct {
	TLSEnabled bool      `json:"tls_enabled" yaml:"tls_enabled"`
	ClientCert *CertInfo `json:"client_cert,omitempty" yaml:"client_cert,omitempty"`
	CACert     *CertInfo `json:"ca_cert,omitempty" yaml:"ca_cert,omitempty"`
	ChainValid bool      `json:"chain_valid" yaml:"chain_valid"`
	ChainError string    `json:"chain_error,omitempty" yaml:"chain_error,omitempty"`
	Loadable   bool      `json:"loadable" yaml:"loadable"`
	LoadError  string    `json:"load_error,omitempty" yaml:"load_error,omitempty"`
}

// NewCertCommand creates the cert command for the grpc fetcher's TLS files.
func NewCertCommand(deps *Deps) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cert",
		Short: "Inspect TLS certificates used by the grpc fetcher",
		Long: `Inspect the CA and client certificates configured under tls:.

Reports subject, issuer and expiry of each certificate, verifies the client
certificate against the CA, and checks that the files load as a TLS
configuration the grpc fetcher can use.

Examples:
  mentionkit cert show
  mentionkit cert show --output json`,
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Display certificate information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := deps.LoadConfig()
			if err != nil {
				return err
			}
			report := inspectCerts(cfg.TLS, time.Now())
			return Render(cmd.OutOrStdout(), outputFormat(cmd, cfg), report, func(w io.Writer) error {
				return writeCertReport(w, report)
			})
		},
	})
	return cmd
}

// inspectCerts builds a report for tlsCfg. Missing files are reported,
// not returned as errors.
func inspectCerts(tlsCfg config.TLSConfig, now time.Time) *CertReport {
	tlsCfg.ResolvePaths()
	report := &CertReport{TLSEnabled: tlsCfg.Enabled}

	var client, ca *x509.Certificate
	if tlsCfg.ClientCert != "" {
		if c, err := loadCertificate(tlsCfg.ClientCert); err == nil {
			client = c
			report.ClientCert = certToInfo(tlsCfg.ClientCert, c, now)
		} else {
			report.LoadError = err.Error()
		}
	}
	if tlsCfg.CACert != "" {
		if c, err := loadCertificate(tlsCfg.CACert); err == nil {
			ca = c
			report.CACert = certToInfo(tlsCfg.CACert, c, now)
		} else {
			report.LoadError = err.Error()
		}
	}

	if client != nil && ca != nil {
		if err := verifyCertChain(client, ca, now); err != nil {
			report.ChainError = err.Error()
		} else {
			report.ChainValid = true
		}
	}

	if report.LoadError == "" {
		check := tlsCfg
		check.Enabled = true
		if err := fetch.CheckCertsExist(&check); err != nil {
			report.LoadError = err.Error()
		} else if _, err := fetch.LoadClientTLSConfig(&check); err != nil {
			report.LoadError = err.Error()
		} else {
			report.Loadable = true
		}
	}
	return report
}

func loadCertificate(path string) (*x509.Certificate, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	block, _ := pem.Decode(data)
	if block == nil {
		return nil, fmt.Errorf("%s: no PEM data", path)
	}
	cert, err := x509.ParseCertificate(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return cert, nil
}

func certToInfo(path string, cert *x509.Certificate, now time.Time) *CertInfo {
	days := int(cert.NotAfter.Sub(now).Hours() / 24)
	return &CertInfo{
		Path:       path,
		Subject:    cert.Subject.String(),
		Issuer:     cert.Issuer.String(),
		ValidFrom:  cert.NotBefore,
		ValidTo:    cert.NotAfter,
		DaysUntil:  days,
		IsExpired:  now.After(cert.NotAfter),
		IsExpiring: !now.After(cert.NotAfter) && days < expiryWarningDays,
	}
}

func verifyCertChain(client, ca *x509.Certificate, now time.Time) error {
	roots := x509.NewCertPool()
	roots.AddCert(ca)
	_, err := client.Verify(x509.VerifyOptions{
		Roots:       roots,
		CurrentTime: now,
		KeyUsages:   []x509.ExtKeyUsage{x509.ExtKeyUsageAny},
	})
	return err
}

func writeCertReport(w io.Writer, r *CertReport) error {
	fmt.Fprintf(w, "TLS enabled: %t\n", r.TLSEnabled)
	for _, c := range []struct {
		label string
		info  *CertInfo
	}{{"Client certificate", r.ClientCert}, {"CA certificate", r.CACert}} {
		if c.info == nil {
			fmt.Fprintf(w, "%s: not configured\n", c.label)
			continue
		}
		state := "valid"
		switch {
		case c.info.IsExpired:
			state = "EXPIRED"
		case c.info.IsExpiring:
			state = "expiring soon"
		}
		fmt.Fprintf(w, "%s: %s\n", c.label, c.info.Path)
		fmt.Fprintf(w, "  subject:  %s\n", c.info.Subject)
		fmt.Fprintf(w, "  issuer:   %s\n", c.info.Issuer)
		fmt.Fprintf(w, "  expires:  %s (%d days, %s)\n", c.info.ValidTo.Format(time.RFC3339), c.info.DaysUntil, state)
	}
	if r.ChainError != "" {
		fmt.Fprintf(w, "Chain: invalid (%s)\n", r.ChainError)
	} else if r.ChainValid {
		fmt.Fprintln(w, "Chain: valid")
	}
	if r.LoadError != "" {
		_, err := fmt.Fprintf(w, "Load: failed (%s)\n", r.LoadError)
		return err
	}
	_, err := fmt.Fprintf(w, "Load: ok\n")
	return err
}
