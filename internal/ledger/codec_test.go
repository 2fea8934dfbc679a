package ledger

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pfinance-dev/pfinance/internal/model"
	"github.com/pfinance-dev/pfinance/internal/store"
)

func TestMarshalTransaction(t *testing.T) {
	row := MarshalTransaction(model.Transaction{
		Date:         date(2024, 3, 5),
		Amount:       dec("-1234.5"),
		ID:           "012345-03/12",
		Name:         "SUPERMERCADO",
		Installment:  "03/12",
		Source:       model.SourceCreditCard,
		CategoryHint: "super",
	})
	assert.Equal(t, []string{"2024-03-05", "SUPERMERCADO", "-1234.50", "03/12", "", "super", "012345-03/12", "credit-card"}, row)
}

func TestDecode_HeaderDriven(t *testing.T) {
	// Older tables have a different column order and no installment/source.
	tbl := &store.Table{
		Columns: []string{"id", "Date", "name", "amount", "category", "alias"},
		Rows: [][]string{
			{"98765432", "2024-03-05 00:00:00", "Ana", "-1500", "amigos", "ana"},
			{"ref1", "2024-03-06", "Cafe", "-250.50", "", ""},
		},
	}
	txns, err := Decode(tbl)
	require.NoError(t, err)
	require.Len(t, txns, 2)

	assert.Equal(t, "98765432", txns[0].ID)
	assert.Equal(t, date(2024, 3, 5), txns[0].Date)
	assert.Equal(t, "amigos", txns[0].CategoryHint)
	assert.Equal(t, "ana", txns[0].AliasHint)
	assert.Equal(t, "", txns[0].Installment)
	assert.Equal(t, model.Source(""), txns[0].Source)

	assert.Equal(t, "-250.50", txns[1].Amount.StringFixed(2))
}

func TestDecode_Empty(t *testing.T) {
	txns, err := Decode(&store.Table{})
	require.NoError(t, err)
	assert.Nil(t, txns)
}

func TestDecode_MissingRequiredColumn(t *testing.T) {
	_, err := Decode(&store.Table{Columns: []string{"date", "name", "amount"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"id"`)
}

func TestDecode_BadRow(t *testing.T) {
	tbl := &store.Table{Columns: Columns(), Rows: [][]string{{"not-a-date", "x", "1", "", "", "", "A", ""}}}
	_, err := Decode(tbl)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "row 2")
	assert.Contains(t, err.Error(), "parsing date")
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := []model.Transaction{
		{Date: date(2024, 1, 2), Amount: dec("-10.00"), ID: "A", Name: "x", Source: model.SourceWallet},
		{Date: date(2024, 1, 3), Amount: dec("20.25"), ID: "B", Name: "y", Source: model.SourceManual, CategoryHint: "c", AliasHint: "a"},
	}
	out, err := Decode(Encode(in))
	require.NoError(t, err)
	require.Len(t, out, 2)
	for i := range in {
		assert.Equal(t, in[i].ID, out[i].ID)
		assert.True(t, in[i].Amount.Equal(out[i].Amount))
		assert.Equal(t, in[i].Date, out[i].Date)
		assert.Equal(t, in[i].Source, out[i].Source)
		assert.Equal(t, in[i].CategoryHint, out[i].CategoryHint)
	}
}
