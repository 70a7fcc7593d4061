package commands

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"text/tabwriter"
)

type PropertiesCmd struct {
	List PropertiesListCmd `cmd:"" help:"List properties"`
}

type PropertiesListCmd struct {
	City     string  `help:"Filter by city"`
	Type     string  `help:"Filter by type (house, apartment, land, commercial, rural)"`
	Purpose  string  `help:"Filter by purpose (sale, rent, both)"`
	Status   string  `help:"Filter by status"`
	MaxPrice float64 `help:"Maximum price"`
	Search   string  `help:"Search title, description and neighborhood" short:"q"`
	Limit    int     `help:"Number of properties to show" default:"20"`
	JSON     bool    `help:"Print JSON instead of a table" name:"json"`
}

func (p *PropertiesListCmd) query() url.Values {
	q := url.Values{}
	set := func(k, v string) {
		if v != "" {
			q.Set(k, v)
		}
	}
	set("city", p.City)
	set("type", p.Type)
	set("purpose", p.Purpose)
	set("status", p.Status)
	set("q", p.Search)
	if p.MaxPrice > 0 {
		q.Set("maxPrice", strconv.FormatFloat(p.MaxPrice, 'f', -1, 64))
	}
	if p.Limit > 0 {
		q.Set("limit", strconv.Itoa(p.Limit))
	}
	return q
}

func (p *PropertiesListCmd) Run(ctx context.Context, globals *Globals) error {
	c, _, err := globals.connect()
	if err != nil {
		return err
	}

	properties, err := c.ListProperties(ctx, p.query())
	if err != nil {
		return fmt.Errorf("failed to list properties: %w", err)
	}

	out := globals.out()
	if p.JSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(properties)
	}

	if len(properties) == 0 {
		fmt.Fprintln(out, "No properties found.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tTYPE\tPURPOSE\tPRICE\tCITY\tSTATUS")
	for _, prop := range properties {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%.2f\t%s\t%s\n",
			prop.PropertyID, truncate(prop.Title, 40), prop.Type, prop.Purpose, prop.Price, prop.Address.City, prop.Status)
	}
	return w.Flush()
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
