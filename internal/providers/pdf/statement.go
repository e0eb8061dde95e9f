package pdf

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/johnfercher/maroto/v2"
	"github.com/johnfercher/maroto/v2/pkg/components/col"
	"github.com/johnfercher/maroto/v2/pkg/components/text"
	"github.com/johnfercher/maroto/v2/pkg/config"
	"github.com/johnfercher/maroto/v2/pkg/consts/align"
	"github.com/johnfercher/maroto/v2/pkg/consts/fontstyle"
	"github.com/johnfercher/maroto/v2/pkg/props"
)

// StatementData is the settlement statement of one delivery, preformatted
// for print.
type StatementData struct {
	DeliveryID     string
	ReportID       string
	TruckCode      string
	PlayerID       string
	PlantID        string
	RecyclerID     string
	SettledAt      string
	PricingVersion string

	Lines []StatementLine

	TotalBottles  string
	CreditsEarned string
	RecyclerFull  bool
}

type StatementLine struct {
	Material  string
	Quantity  int64
	UnitPrice string
	Credits   string
}

type PDFProvider struct{}

func New() Provider {
	return &PDFProvider{}
}

func (p *PDFProvider) GenerateStatement(ctx context.Context, data StatementData) (io.Reader, error) {
	cfg := config.NewBuilder().
		WithPageNumber(props.PageNumber{
			Pattern: "Page {current} of {total}",
			Place:   props.RightBottom,
		}).
		Build()

	m := maroto.New(cfg)

	m.AddRow(12,
		text.NewCol(12, "Delivery settlement", props.Text{
			Size:  20,
			Style: fontstyle.Bold,
			Align: align.Left,
		}),
	)

	m.AddRow(24,
		col.New(6).Add(
			text.New("Delivery: "+data.DeliveryID, props.Text{Top: 0}),
			text.New("Report: "+data.ReportID, props.Text{Top: 4}),
			text.New("Truck: "+data.TruckCode, props.Text{Top: 8}),
			text.New("Player: "+data.PlayerID, props.Text{Top: 12}),
		),
		col.New(6).Add(
			text.New("Plant: "+data.PlantID, props.Text{Top: 0}),
			text.New("Recycler: "+data.RecyclerID, props.Text{Top: 4}),
			text.New("Settled at: "+data.SettledAt, props.Text{Top: 8}),
			text.New("Pricing version: "+data.PricingVersion, props.Text{Top: 12}),
		),
	)

	m.AddRow(10,
		text.NewCol(6, "Material", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, "Qty", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Unit price", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
		text.NewCol(2, "Credits", props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	for _, line := range data.Lines {
		m.AddRow(8,
			text.NewCol(6, line.Material, props.Text{Size: 9}),
			text.NewCol(2, fmt.Sprintf("%d", line.Quantity), props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, line.UnitPrice, props.Text{Size: 9, Align: align.Right}),
			text.NewCol(2, line.Credits, props.Text{Size: 9, Align: align.Right}),
		)
	}

	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Bottles", props.Text{Size: 9}),
		text.NewCol(2, data.TotalBottles, props.Text{Size: 9, Align: align.Right}),
	)
	m.AddRow(10,
		col.New(8),
		text.NewCol(2, "Credits earned", props.Text{Style: fontstyle.Bold, Size: 9}),
		text.NewCol(2, data.CreditsEarned, props.Text{Style: fontstyle.Bold, Size: 9, Align: align.Right}),
	)

	if data.RecyclerFull {
		m.AddRow(10,
			text.NewCol(12, "This delivery filled the recycler.", props.Text{Size: 9, Style: fontstyle.Italic, Top: 3}),
		)
	}

	doc, err := m.Generate()
	if err != nil {
		return nil, err
	}

	return bytes.NewReader(doc.GetBytes()), nil
}
