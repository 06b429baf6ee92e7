package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/minio/minio-go/v7"
	"github.com/xuri/excelize/v2"

	"github.com/restoros/drylog/internal/drying/dryerr"
	"github.com/restoros/drylog/internal/drying/entity"
	"github.com/restoros/drylog/internal/drying/repository"
	"github.com/restoros/drylog/internal/shared/renderer"
)

// ReportService 报告生成与下载。渲染并发由renderer.Client内部限流；
// 同日志并发生成互不干扰：每次调用产物名唯一。
type ReportService struct {
	repos    *repository.Repositories
	renderer *renderer.Client
	minio    *minio.Client
	bucket   string
}

// NewReportService 创建报告服务
func NewReportService(repos *repository.Repositories, rendererClient *renderer.Client, minioClient *minio.Client, bucket string) *ReportService {
	return &ReportService{
		repos:    repos,
		renderer: rendererClient,
		minio:    minioClient,
		bucket:   bucket,
	}
}

// Generate 生成报告：快照→编译→外部渲染→MinIO落盘→元数据落库。
// 任一环节失败都不留半成品：渲染失败不上传，落库失败删对象。
// 日志锁定后仍可生成（从冻结数据重算）。
func (s *ReportService) Generate(ctx context.Context, logID, userID string) (*entity.DryingReport, error) {
	if s.renderer == nil {
		return nil, &dryerr.RenderingFailureError{Cause: errors.New("renderer is not configured")}
	}
	if s.minio == nil {
		return nil, fmt.Errorf("object storage is not configured")
	}

	snap, err := LoadSnapshot(ctx, s.repos, logID)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	doc := Compile(snap, now)

	pdf, err := s.renderer.Render(ctx, doc)
	if err != nil {
		return nil, &dryerr.RenderingFailureError{Cause: err}
	}

	// 产物名带UUID，同日志并发生成不会互相覆盖
	filename := fmt.Sprintf("drying-report-%s-%s.pdf", snap.Log.JobID, now.Format("20060102"))
	objectName := fmt.Sprintf("reports/%s/%s-%s.pdf", logID, logID, uuid.New().String())

	_, err = s.minio.PutObject(ctx, s.bucket, objectName, bytes.NewReader(pdf), int64(len(pdf)), minio.PutObjectOptions{
		ContentType: "application/pdf",
	})
	if err != nil {
		return nil, fmt.Errorf("upload report: %w", err)
	}

	report := &entity.DryingReport{
		ID:          newID(),
		DryingLogID: logID,
		JobID:       snap.Log.JobID,
		Filename:    filename,
		FilePath:    objectName,
		FileSize:    int64(len(pdf)),
		GeneratedBy: userID,
		GeneratedAt: now,
	}
	if err := s.repos.Report.Create(ctx, report); err != nil {
		// 元数据落库失败时清掉已上传对象，不留孤儿产物
		_ = s.minio.RemoveObject(ctx, s.bucket, objectName, minio.RemoveObjectOptions{})
		return nil, fmt.Errorf("create report record: %w", err)
	}
	return report, nil
}

// List 日志下全部报告，最新在前（最新一份为当前有效报告）
func (s *ReportService) List(ctx context.Context, logID string) ([]entity.DryingReport, error) {
	if _, err := s.repos.Log.FindByID(ctx, logID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, dryerr.NewNotFound("drying log", logID)
		}
		return nil, fmt.Errorf("find drying log: %w", err)
	}
	return s.repos.Report.ListByLog(ctx, logID)
}

// Download 下载报告文件流。调用方负责Close。
func (s *ReportService) Download(ctx context.Context, logID, reportID string) (*entity.DryingReport, io.ReadCloser, error) {
	if s.minio == nil {
		return nil, nil, fmt.Errorf("object storage is not configured")
	}
	report, err := s.repos.Report.FindByID(ctx, logID, reportID)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil, dryerr.NewNotFound("report", reportID)
		}
		return nil, nil, fmt.Errorf("find report: %w", err)
	}
	object, err := s.minio.GetObject(ctx, s.bucket, report.FilePath, minio.GetObjectOptions{})
	if err != nil {
		return nil, nil, fmt.Errorf("get report object: %w", err)
	}
	return report, object, nil
}

// ExportExcel 导出Excel工作簿：趋势表、监测点矩阵、设备汇总各一张sheet
func (s *ReportService) ExportExcel(ctx context.Context, logID string) ([]byte, string, error) {
	snap, err := LoadSnapshot(ctx, s.repos, logID)
	if err != nil {
		return nil, "", err
	}
	doc := Compile(snap, time.Now())

	f := excelize.NewFile()
	defer f.Close()

	if err := writeTrendSheet(f, doc); err != nil {
		return nil, "", fmt.Errorf("write trend sheet: %w", err)
	}
	if err := writePointSheet(f, doc); err != nil {
		return nil, "", fmt.Errorf("write point sheet: %w", err)
	}
	if err := writeEquipmentSheet(f, doc); err != nil {
		return nil, "", fmt.Errorf("write equipment sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, "", fmt.Errorf("write workbook: %w", err)
	}
	filename := fmt.Sprintf("drying-log-%s-%s.xlsx", snap.Log.JobID, time.Now().Format("20060102"))
	return buf.Bytes(), filename, nil
}

// visitHeader 列头：V1, V2, ...
func visitHeader(doc *ReportDocument) []interface{} {
	header := []interface{}{""}
	for _, v := range doc.Visits {
		header = append(header, fmt.Sprintf("V%d %s", v.VisitNumber, v.VisitedAt.Format("01-02")))
	}
	return header
}

func writeTrendSheet(f *excelize.File, doc *ReportDocument) error {
	sheet := "温湿度趋势"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	row := 1
	writeRow := func(values []interface{}) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		row++
		return f.SetSheetRow(sheet, cell, &values)
	}

	if err := writeRow(visitHeader(doc)); err != nil {
		return err
	}
	writeTrend := func(prefix string, rows []TrendRow) error {
		for _, tr := range rows {
			values := []interface{}{prefix + tr.Label}
			for _, cell := range tr.Cells {
				if cell == nil {
					values = append(values, "")
					continue
				}
				values = append(values, fmt.Sprintf("%.0f°F/%.0f%%/%.1fgpp", cell.TempF, cell.RHPercent, cell.GPP))
			}
			if err := writeRow(values); err != nil {
				return err
			}
		}
		return nil
	}

	if err := writeTrend("", doc.SiteTrend); err != nil {
		return err
	}
	for _, chamber := range doc.Chambers {
		if err := writeTrend(chamber.Name+" ", chamber.Trend); err != nil {
			return err
		}
	}
	return nil
}

func writePointSheet(f *excelize.File, doc *ReportDocument) error {
	sheet := "监测点"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	row := 1
	writeRow := func(values []interface{}) error {
		cell, err := excelize.CoordinatesToCellName(1, row)
		if err != nil {
			return err
		}
		row++
		return f.SetSheetRow(sheet, cell, &values)
	}

	if err := writeRow(visitHeader(doc)); err != nil {
		return err
	}
	for _, chamber := range doc.Chambers {
		for _, room := range chamber.Rooms {
			for _, point := range room.Points {
				label := fmt.Sprintf("%s #%d %s", room.Name, point.RefNumber, point.MaterialCode)
				values := []interface{}{label}
				for _, cell := range point.Cells {
					switch {
					case cell.Status == PointStatusDemolished:
						values = append(values, "已拆除")
					case cell.Value == nil:
						values = append(values, "")
					default:
						values = append(values, *cell.Value)
					}
				}
				if err := writeRow(values); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func writeEquipmentSheet(f *excelize.File, doc *ReportDocument) error {
	sheet := "设备计费"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	header := []interface{}{"设备类型", "已撤场台数", "计费周期", "在场台数"}
	if err := f.SetSheetRow(sheet, "A1", &header); err != nil {
		return err
	}
	for i, summary := range doc.BillingSummary {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{summary.EquipmentType, summary.CompletedUnits, summary.BillingPeriods, summary.ActiveUnits}
		if err := f.SetSheetRow(sheet, cell, &values); err != nil {
			return err
		}
	}
	return nil
}
