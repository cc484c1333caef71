package models

import (
	"log"

	"github.com/mmdatafocus/invoicing_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&Organization{}, &OrganizationMember{}, &InvoiceNumberCounter{},
		&User{},
		&Customer{}, &Product{}, &VatRate{},
		&Template{},
		&Invoice{}, &InvoiceItem{},
		&RenderRequest{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
