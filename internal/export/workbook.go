package export

import (
	"bytes"
	"fmt"
	"strings"

	"family-admin/internal/domain"

	"github.com/xuri/excelize/v2"
)

const (
	PermissionsSheet = "Permissions"
	ChangesSheet     = "Changes"
)

// MatrixWorkbook 生成权限矩阵 Excel 文件
// changes 非空时额外生成 Changes 工作表（未保存的变更集）
func MatrixWorkbook(subject domain.Subject, m domain.Matrix, changes []domain.CellChange) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(PermissionsSheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	// 第 1 行：subject；第 2 行：表头；数据从第 3 行开始
	if err := f.SetCellValue(PermissionsSheet, "A1", "Subject: "+subject.String()); err != nil {
		return nil, err
	}
	header := []any{"Entity"}
	for _, a := range domain.Actions() {
		header = append(header, title(string(a)))
	}
	if err := writeRow(f, PermissionsSheet, 2, header, headerStyle); err != nil {
		return nil, err
	}
	for i, e := range domain.Entities() {
		row := []any{title(string(e))}
		for _, a := range domain.Actions() {
			row = append(row, yesNo(m.Get(e, a)))
		}
		if err := writeRow(f, PermissionsSheet, i+3, row, 0); err != nil {
			return nil, err
		}
	}
	if err := f.SetColWidth(PermissionsSheet, "A", "A", 18); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}
	if err := f.SetPanes(PermissionsSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      2,
		TopLeftCell: "A3",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	if len(changes) > 0 {
		if _, err := f.NewSheet(ChangesSheet); err != nil {
			return nil, fmt.Errorf("failed to create sheet: %w", err)
		}
		if err := writeRow(f, ChangesSheet, 1, []any{"Entity", "Action", "New Value"}, headerStyle); err != nil {
			return nil, err
		}
		for i, c := range changes {
			row := []any{title(string(c.Entity)), title(string(c.Action)), yesNo(c.Value)}
			if err := writeRow(f, ChangesSheet, i+2, row, 0); err != nil {
				return nil, err
			}
		}
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	return buf.Bytes(), nil
}

func writeRow(f *excelize.File, sheet string, row int, values []any, style int) error {
	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, row)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, v); err != nil {
			return fmt.Errorf("failed to set cell %s: %w", cell, err)
		}
		if style != 0 {
			if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
				return fmt.Errorf("failed to set cell style: %w", err)
			}
		}
	}
	return nil
}

func yesNo(v bool) string {
	if v {
		return "Yes"
	}
	return "No"
}

func title(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
