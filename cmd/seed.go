/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"errors"
	"fmt"
	"time"

	"github.com/contactbook/apiserver/internal/db"
	"github.com/contactbook/apiserver/internal/services"
	"github.com/contactbook/apiserver/internal/store"
	"github.com/contactbook/apiserver/types"
	"github.com/spf13/cobra"
)

var seedOwner string

// sampleContacts have birthdays relative to today so the birthdays
// endpoint has something to show.
func sampleContacts(today time.Time) []services.ContactInput {
	birthday := func(yearsAgo, inDays int) types.Date {
		d := today.AddDate(-yearsAgo, 0, inDays)
		return types.NewDate(d.Year(), d.Month(), d.Day())
	}
	return []services.ContactInput{
		{FirstName: "Olena", LastName: "Kovalenko", Email: "olena.kovalenko@example.com", PhoneNumber: "+380501112233", BirthDate: birthday(31, 2), Note: "book club"},
		{FirstName: "Taras", LastName: "Shevchuk", Email: "taras.shevchuk@example.com", PhoneNumber: "+380671234567", BirthDate: birthday(45, 5)},
		{FirstName: "Maria", LastName: "Bondar", Email: "maria.bondar@example.com", PhoneNumber: "+380931112244", BirthDate: birthday(27, 40)},
		{FirstName: "John", LastName: "Doe", Email: "john.doe@example.com", PhoneNumber: "+15550100", BirthDate: birthday(52, 120), Note: "former colleague"},
		{FirstName: "Jane", LastName: "Roe", Email: "jane.roe@example.com", PhoneNumber: "+15550101", BirthDate: birthday(38, 0)},
	}
}

// seedCmd represents the seed command
var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Insert sample contacts for a user",
	RunE: func(cmd *cobra.Command, args []string) error {
		if seedOwner == "" {
			return errors.New("--owner is required")
		}
		cfg, log, err := loadConfig()
		if err != nil {
			return err
		}

		conn, err := db.Open(cmd.Context(), cfg.Database)
		if err != nil {
			return err
		}
		defer conn.Close()

		owner, err := store.NewUserRepository(conn).GetByUsername(cmd.Context(), seedOwner)
		if err != nil {
			return fmt.Errorf("load owner %s: %w", seedOwner, err)
		}

		contacts := services.NewContactService(store.NewContactRepository(conn))
		created := 0
		for _, in := range sampleContacts(time.Now().UTC()) {
			_, err := contacts.Create(cmd.Context(), owner.ID, in)
			if errors.Is(err, store.ErrConflict) {
				log.Info("contact already exists, skipping", "email", in.Email)
				continue
			}
			if err != nil {
				return err
			}
			created++
		}
		log.Info("seed complete", "owner", owner.Username, "created", created)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(seedCmd)

	seedCmd.Flags().StringVar(&seedOwner, "owner", "", "username that will own the sample contacts")
}
