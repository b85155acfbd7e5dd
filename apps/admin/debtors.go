package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/trezcool/tuition/core/billing"
	"github.com/trezcool/tuition/core/debtor"
)

func monthFlag(m int) billing.Month {
	return billing.Month(m)
}

// debtors prints one line per debtor, biggest debts first.
func (cli *commandLine) debtors(filter debtor.Filter) error {
	res, err := cli.debtorSvc.FindDebtors(context.Background(), filter)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(cli.out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "STUDENT\tNAME\tGROUPS\tMONTHS OWED\tTOTAL DEBT\t")
	for _, d := range res.Data {
		groups := ""
		for i, g := range d.GroupDetails {
			if i > 0 {
				groups += ", "
			}
			groups += g.Name
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t\n", d.Code, d.FullName(), groups, len(d.DebtorMonths), d.TotalDebt.StringFixed(2))
	}
	if err = w.Flush(); err != nil {
		return err
	}
	_, _ = fmt.Fprintf(cli.out, "%d debtor(s)\n", res.Total)
	return nil
}
