package httpapi

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/domain"
	"github.com/dev-nexcore/KGF-HM-backend-sub000/hostel-data/internal/service"

	"github.com/xuri/excelize/v2"
)

const (
	assetSheetName  = "Assets"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// AssetImportHeader 导入模板表头（External Code 可留空，自动生成）
var AssetImportHeader = []string{
	"Category",
	"Label",
	"External Code",
}

// AssetExportHeader 导出表头
var AssetExportHeader = []string{
	"Category",
	"Label",
	"External Code",
	"Public Slug",
	"State",
	"Occupied",
	"Updated At",
}

// GenerateAssetImportTemplate 生成导入模板
func GenerateAssetImportTemplate() ([]byte, error) {
	return generateAssetExcel(AssetImportHeader, nil)
}

// GenerateAssetExport 生成资产导出文件
func GenerateAssetExport(assets []*domain.Asset) ([]byte, error) {
	rows := make([][]any, 0, len(assets))
	for _, a := range assets {
		occupied := "No"
		if a.IsOccupied() {
			occupied = "Yes"
		}
		rows = append(rows, []any{
			a.Category,
			a.HumanLabel,
			a.ExternalCode,
			a.PublicSlug,
			string(a.State),
			occupied,
			a.UpdatedAt.Format("2006-01-02 15:04:05"),
		})
	}
	return generateAssetExcel(AssetExportHeader, rows)
}

func generateAssetExcel(headers []string, rows [][]any) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(assetSheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range headers {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(assetSheetName, cell, header); err != nil {
			return nil, fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(assetSheetName, cell, cell, headerStyle); err != nil {
			return nil, fmt.Errorf("failed to set header style: %w", err)
		}
	}
	if err := f.SetColWidth(assetSheetName, "A", "G", 22); err != nil {
		return nil, fmt.Errorf("failed to set column width: %w", err)
	}

	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetSheetRow(assetSheetName, cell, &row); err != nil {
			return nil, fmt.Errorf("failed to write row %d: %w", i+2, err)
		}
	}

	// 冻结表头
	if err := f.SetPanes(assetSheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	return buf.Bytes(), nil
}

// ParseAssetImport 读取第一个 sheet；按表头名定位列，空行跳过
func ParseAssetImport(data []byte) ([]service.CreateAssetRequest, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse Excel file: %w", err)
	}
	defer f.Close()

	sheetName := f.GetSheetName(0)
	if sheetName == "" {
		return nil, errors.New("excel file has no sheets")
	}
	rows, err := f.GetRows(sheetName)
	if err != nil {
		return nil, fmt.Errorf("failed to read rows: %w", err)
	}
	if len(rows) < 2 {
		return []service.CreateAssetRequest{}, nil
	}

	headerMap := make(map[string]int, len(rows[0]))
	for i, h := range rows[0] {
		headerMap[strings.ToLower(strings.TrimSpace(h))] = i
	}
	for _, required := range []string{"category", "label"} {
		if _, ok := headerMap[required]; !ok {
			return nil, fmt.Errorf("missing column %q", required)
		}
	}

	cellAt := func(row []string, name string) string {
		idx, ok := headerMap[name]
		if !ok || idx >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[idx])
	}

	items := make([]service.CreateAssetRequest, 0, len(rows)-1)
	for _, row := range rows[1:] {
		item := service.CreateAssetRequest{
			Category:     cellAt(row, "category"),
			HumanLabel:   cellAt(row, "label"),
			ExternalCode: cellAt(row, "external code"),
		}
		if item.Category == "" && item.HumanLabel == "" && item.ExternalCode == "" {
			continue
		}
		items = append(items, item)
	}
	return items, nil
}
