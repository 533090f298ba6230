// certinfo lista los certificados que ve el almacén del host y el NIF extraído
// de cada uno. Con un fichero como argumento diagnostica solo ese fichero.
//
// Uso: go run ./cmd/certinfo [ruta.p12|ruta.pem] [-nif B12345674]
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/jhoicas/Concesionario-api/internal/domain/certificate"
	"github.com/jhoicas/Concesionario-api/internal/domain/entity"
	"github.com/jhoicas/Concesionario-api/internal/infrastructure/certstore"
	"github.com/jhoicas/Concesionario-api/pkg/aeat"
	"github.com/jhoicas/Concesionario-api/pkg/config"
	"github.com/jhoicas/Concesionario-api/pkg/logger"
)

func main() {
	nif := flag.String("nif", "", "NIF de la empresa para calcular el nivel de compatibilidad")
	name := flag.String("nombre", "", "razón social de la empresa")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "configuración: %v\n", err)
		os.Exit(1)
	}

	var certs []entity.CertificateDescriptor
	if path := flag.Arg(0); path != "" {
		entries, err := certstore.LoadFile(path, cfg.Certs.StorePassword)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", path, err)
			os.Exit(1)
		}
		for _, e := range entries {
			certs = append(certs, e.Descriptor)
		}
	} else {
		log := logger.New(logger.Config{Env: "development", Level: "warn"})
		certs = certstore.NewRegistry(cfg.Certs.StoreDir, cfg.Certs.StorePassword, log).Discover(context.Background())
		fmt.Printf("Almacén: %s (%d certificados)\n\n", cfg.Certs.StoreDir, len(certs))
	}
	if len(certs) == 0 {
		fmt.Println("Sin certificados. La firma usará el certificado de desarrollo.")
		return
	}

	var company *entity.Company
	if *nif != "" {
		if err := aeat.ValidateNIF(*nif); err != nil {
			fmt.Fprintf(os.Stderr, "aviso: %v\n", err)
		}
		company = &entity.Company{Name: *name, TaxID: aeat.NormalizeNIF(*nif)}
	}

	now := time.Now()
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SERIE\tTITULAR\tNIF\tCLAVE\tVIGENTE\tCADUCA\tNIVEL")
	for _, c := range certs {
		tier := "-"
		if company != nil {
			tier = string(certificate.Evaluate(c, company, now).Tier)
		}
		taxID := c.TaxID
		if taxID != "" && !c.TaxIDValid {
			taxID += " (inválido)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			c.Serial, c.SubjectCN, orDash(taxID), yesNo(c.HasPrivateKey), yesNo(c.IsValidAt(now)),
			c.NotAfter.Format("2006-01-02"), tier)
	}
	_ = w.Flush()
}

func yesNo(b bool) string {
	if b {
		return "sí"
	}
	return "no"
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
