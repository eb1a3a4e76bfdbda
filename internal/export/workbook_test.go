package export

import (
	"bytes"
	"testing"

	"family-admin/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestMatrixWorkbook_WritesMatrix(t *testing.T) {
	m := domain.NewMatrix()
	m.Set(domain.EntityEvent, domain.ActionView, true)
	m.Set(domain.EntityAdvertisement, domain.ActionDelete, true)

	b, err := MatrixWorkbook(domain.Subject{ID: "u-1", Kind: domain.SubjectUser}, m, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{PermissionsSheet}, f.GetSheetList())

	v, err := f.GetCellValue(PermissionsSheet, "A1")
	require.NoError(t, err)
	assert.Equal(t, "Subject: user:u-1", v)

	rows, err := f.GetRows(PermissionsSheet)
	require.NoError(t, err)
	require.Len(t, rows, 2+len(domain.Entities()))
	assert.Equal(t, []string{"Entity", "View", "Create", "Update", "Delete"}, rows[1])
	assert.Equal(t, []string{"Event", "Yes", "No", "No", "No"}, rows[2])
	assert.Equal(t, []string{"Advertisement", "No", "No", "No", "Yes"}, rows[len(rows)-1])
}

func TestMatrixWorkbook_ChangesSheet(t *testing.T) {
	changes := []domain.CellChange{
		{Entity: domain.EntityFinance, Action: domain.ActionUpdate, Value: true},
		{Entity: domain.EntityMember, Action: domain.ActionView, Value: false},
	}

	b, err := MatrixWorkbook(domain.Subject{ID: "r-1", Kind: domain.SubjectRole}, domain.NewMatrix(), changes)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(b))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(ChangesSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"Finance", "Update", "Yes"}, rows[1])
	assert.Equal(t, []string{"Member", "View", "No"}, rows[2])
}
