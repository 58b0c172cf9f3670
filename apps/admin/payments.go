package main

import (
	"context"
	"fmt"
	"os"

	"github.com/shopspring/decimal"

	"github.com/edtools/edcore/core"
	"github.com/edtools/edcore/core/payment"
	"github.com/edtools/edcore/services/report"
)

func (cli *commandLine) pay(student, reference, amount, currency string) error {
	amt, err := decimal.NewFromString(amount)
	if err != nil {
		return core.NewValidationError(err, core.FieldError{Field: "amount", Error: "amount must be a number"})
	}

	pmt, created, err := cli.paymentSvc.AllocatePayment(context.Background(), payment.NewPayment{
		Reference: reference,
		Student:   student,
		Amount:    amt,
		Currency:  currency,
		Source:    payment.SourceManual,
	})
	if err != nil {
		return err
	}
	if !created {
		fmt.Fprintf(cli.out, "payment %s was already allocated\n", pmt.Reference)
	}
	for _, a := range pmt.Allocations {
		fmt.Fprintf(cli.out, "%s\t%s\t%s %s\n", a.ObligationID, a.DueDate.Format("2006-01-02"), a.Amount.StringFixed(2), pmt.Currency)
	}
	fmt.Fprintf(cli.out, "unallocated: %s %s\n", pmt.Unallocated().StringFixed(2), pmt.Currency)
	return nil
}

func (cli *commandLine) collectionReport(path string, students ...string) (err error) {
	rows, err := cli.paymentSvc.CollectionReport(context.Background(), students...)
	if err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := f.Close(); err == nil {
			err = cerr
		}
	}()

	if err = report.WriteCollection(f, rows); err != nil {
		return err
	}
	fmt.Fprintf(cli.out, "%d students written to %s\n", len(rows), path)
	return nil
}
