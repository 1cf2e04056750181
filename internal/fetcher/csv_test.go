package fetcher

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadCSV_HeaderAndRows(t *testing.T) {
	in := "Type,Product,Quantity (ton),Date\nBUY,Corn,12.5,2024-03-02\nSELL,Wheat,8.2,2024-03-02\n"

	header, rows, err := ReadCSV(strings.NewReader(in), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Type", "Product", "Quantity (ton)", "Date"}, header)
	require.Len(t, rows, 2)
	assert.Equal(t, "8.2", rows[1][2])
}

func TestReadCSV_TrimsWhitespace(t *testing.T) {
	in := "Type, Product \n BUY , Corn \n"

	header, rows, err := ReadCSV(strings.NewReader(in), CSVOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"Type", "Product"}, header)
	require.Len(t, rows, 1)
	assert.Equal(t, "BUY", rows[0][0])
	assert.Equal(t, "Corn", rows[0][1])
}

func TestReadCSV_SkipsBlankRows(t *testing.T) {
	in := "Type,Product\nBUY,Corn\n,\nSELL,Wheat\n"

	_, rows, err := ReadCSV(strings.NewReader(in), CSVOptions{})
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestReadCSV_VariableFieldCounts(t *testing.T) {
	in := "Type,Product,Site\nBUY,Corn\nSELL,Wheat,Silo A\n"

	_, rows, err := ReadCSV(strings.NewReader(in), CSVOptions{})
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Len(t, rows[0], 2)
	assert.Len(t, rows[1], 3)
}

func TestReadCSV_CustomDelimiter(t *testing.T) {
	in := "Type;Product\nBUY;Corn\n"

	header, rows, err := ReadCSV(strings.NewReader(in), CSVOptions{Delimiter: ';'})
	require.NoError(t, err)
	assert.Equal(t, []string{"Type", "Product"}, header)
	require.Len(t, rows, 1)
}

func TestReadCSV_Empty(t *testing.T) {
	_, _, err := ReadCSV(strings.NewReader(""), CSVOptions{})
	require.Error(t, err)
}
