package handler

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/restoros/drylog/internal/drying/repository"
	"github.com/restoros/drylog/internal/drying/service"
	"github.com/restoros/drylog/internal/drying/testutil"
)

// setupVisitRouter 组装巡检相关路由与依赖
func setupVisitRouter(t *testing.T) (*gin.Engine, *repository.Repositories) {
	t.Helper()
	db := testutil.SetupTestDB(t)
	repos := repository.NewRepositories(db)

	logSvc := service.NewLogService(repos)
	structureSvc := service.NewStructureService(repos)
	visitSvc := service.NewVisitService(repos, nil)
	completionSvc := service.NewCompletionService(repos)

	logHandler := NewLogHandler(logSvc)
	structureHandler := NewStructureHandler(structureSvc)
	visitHandler := NewVisitHandler(visitSvc)
	completionHandler := NewCompletionHandler(completionSvc)

	r := testutil.SetupRouter()
	api := testutil.AuthGroup(r, "/api/v1")
	api.POST("/drying-logs", logHandler.Create)
	api.POST("/drying-logs/:id/chambers", structureHandler.CreateChamber)
	api.POST("/drying-logs/:id/rooms", structureHandler.CreateRoom)
	api.POST("/drying-logs/:id/ref-points", structureHandler.CreateRefPoint)
	api.GET("/drying-logs/:id/ref-points", structureHandler.ListRefPoints)
	api.DELETE("/drying-logs/:id/ref-points/:pointId", structureHandler.DeleteRefPoint)
	api.POST("/drying-logs/:id/ref-points/:pointId/demolish", visitHandler.Demolish)
	api.POST("/drying-logs/:id/ref-points/:pointId/undo-demolish", visitHandler.UndoDemolish)
	api.POST("/drying-logs/:id/visits", visitHandler.Save)
	api.GET("/drying-logs/:id/visits", visitHandler.List)
	api.GET("/drying-logs/:id/visits/:visitId", visitHandler.Get)
	api.PATCH("/drying-logs/:id/visits/:visitId", visitHandler.UpdateVisitedAt)
	api.POST("/drying-logs/:id/visits/:visitId/notes", visitHandler.AddNote)
	api.POST("/drying-logs/:id/complete", completionHandler.Complete)

	return r, repos
}

// createLog 经API创建日志并返回ID
func createLog(t *testing.T, r *gin.Engine, jobID string) string {
	t.Helper()
	w := testutil.DoRequest(r, "POST", "/api/v1/drying-logs",
		map[string]string{"job_id": jobID}, testutil.DefaultTestToken())
	if w.Code != 201 {
		t.Fatalf("create log failed: %d %s", w.Code, w.Body.String())
	}
	resp := testutil.ParseResponse(w)
	data := resp["data"].(map[string]interface{})
	return data["id"].(string)
}

func saveVisitBody(visitedAt time.Time) map[string]interface{} {
	return map[string]interface{}{
		"visited_at": visitedAt.Format(time.RFC3339),
		"atmospherics": []map[string]interface{}{
			{"reading_type": "unaffected_area", "temp_f": 70, "rh_percent": 50},
		},
	}
}

func TestSaveVisitAssignsSequentialNumbers(t *testing.T) {
	r, _ := setupVisitRouter(t)
	logID := createLog(t, r, "job-seq")
	token := testutil.DefaultTestToken()

	for i := 1; i <= 3; i++ {
		w := testutil.DoRequest(r, "POST", "/api/v1/drying-logs/"+logID+"/visits",
			saveVisitBody(time.Now()), token)
		if w.Code != 201 {
			t.Fatalf("save visit %d failed: %d %s", i, w.Code, w.Body.String())
		}
		resp := testutil.ParseResponse(w)
		data := resp["data"].(map[string]interface{})
		if got := int(data["visit_number"].(float64)); got != i {
			t.Errorf("visit %d got number %d", i, got)
		}
	}
}

func TestSaveVisitConcurrentNumbersUnique(t *testing.T) {
	r, repos := setupVisitRouter(t)
	logID := createLog(t, r, "job-concurrent")
	token := testutil.DefaultTestToken()

	const n = 8
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			testutil.DoRequest(r, "POST", "/api/v1/drying-logs/"+logID+"/visits",
				saveVisitBody(time.Now()), token)
		}()
	}
	wg.Wait()

	visits, err := repos.Visit.List(context.Background(), logID)
	if err != nil {
		t.Fatalf("list visits: %v", err)
	}
	if len(visits) != n {
		t.Fatalf("got %d visits, want %d", len(visits), n)
	}
	// 序号必须正好是1..N，无空洞无重复
	for i, v := range visits {
		if v.VisitNumber != i+1 {
			t.Errorf("visit[%d] number = %d, want %d", i, v.VisitNumber, i+1)
		}
	}
}

func TestSaveVisitRejectsOutOfRangeReading(t *testing.T) {
	r, _ := setupVisitRouter(t)
	logID := createLog(t, r, "job-range")

	body := map[string]interface{}{
		"visited_at": time.Now().Format(time.RFC3339),
		"atmospherics": []map[string]interface{}{
			{"reading_type": "outside", "temp_f": 70, "rh_percent": 120},
		},
	}
	w := testutil.DoRequest(r, "POST", "/api/v1/drying-logs/"+logID+"/visits",
		body, testutil.DefaultTestToken())
	if w.Code != 422 {
		t.Fatalf("expected 422 for rh=120, got %d %s", w.Code, w.Body.String())
	}
	// 无效读数不得留下巡检记录
	wList := testutil.DoRequest(r, "GET", "/api/v1/drying-logs/"+logID+"/visits", nil, testutil.DefaultTestToken())
	resp := testutil.ParseResponse(wList)
	if data, ok := resp["data"].([]interface{}); ok && len(data) != 0 {
		t.Errorf("invalid reading must not create a visit, got %d", len(data))
	}
}

func TestSaveVisitUnknownRefPointLeavesNothing(t *testing.T) {
	r, repos := setupVisitRouter(t)
	logID := createLog(t, r, "job-badpoint")
	token := testutil.DefaultTestToken()

	body := map[string]interface{}{
		"visited_at": time.Now().Format(time.RFC3339),
		"moistures": []map[string]interface{}{
			{"ref_point_id": "no-such-point", "reading_value": 15},
		},
	}
	w := testutil.DoRequest(r, "POST", "/api/v1/drying-logs/"+logID+"/visits", body, token)
	if w.Code != 404 {
		t.Fatalf("expected 404 for unknown ref point, got %d %s", w.Code, w.Body.String())
	}

	// 未知监测点不得留下巡检记录
	visits, err := repos.Visit.List(context.Background(), logID)
	if err != nil {
		t.Fatalf("list visits: %v", err)
	}
	if len(visits) != 0 {
		t.Fatalf("failed save left %d visits behind", len(visits))
	}

	// 也不得消耗序号：下一次正常保存仍是第1次巡检
	w2 := testutil.DoRequest(r, "POST", "/api/v1/drying-logs/"+logID+"/visits",
		saveVisitBody(time.Now()), token)
	if w2.Code != 201 {
		t.Fatalf("save visit: %d %s", w2.Code, w2.Body.String())
	}
	data := testutil.ParseResponse(w2)["data"].(map[string]interface{})
	if got := int(data["visit_number"].(float64)); got != 1 {
		t.Errorf("visit number = %d, want 1", got)
	}
}

func TestVisitDetailComputesGPPAndDelta(t *testing.T) {
	r, _ := setupVisitRouter(t)
	logID := createLog(t, r, "job-gpp")
	token := testutil.DefaultTestToken()

	w1 := testutil.DoRequest(r, "POST", "/api/v1/drying-logs/"+logID+"/visits",
		saveVisitBody(time.Now().Add(-24*time.Hour)), token)
	if w1.Code != 201 {
		t.Fatalf("save visit 1: %d %s", w1.Code, w1.Body.String())
	}

	body2 := map[string]interface{}{
		"visited_at": time.Now().Format(time.RFC3339),
		"atmospherics": []map[string]interface{}{
			{"reading_type": "unaffected_area", "temp_f": 70, "rh_percent": 45},
		},
	}
	w2 := testutil.DoRequest(r, "POST", "/api/v1/drying-logs/"+logID+"/visits", body2, token)
	resp2 := testutil.ParseResponse(w2)
	visit2 := resp2["data"].(map[string]interface{})["id"].(string)

	wDetail := testutil.DoRequest(r, "GET", "/api/v1/drying-logs/"+logID+"/visits/"+visit2, nil, token)
	if wDetail.Code != 200 {
		t.Fatalf("detail: %d %s", wDetail.Code, wDetail.Body.String())
	}
	detail := testutil.ParseResponse(wDetail)["data"].(map[string]interface{})
	readings := detail["atmospherics"].([]interface{})
	if len(readings) != 1 {
		t.Fatalf("got %d atmospherics, want 1", len(readings))
	}
	reading := readings[0].(map[string]interface{})
	gpp := reading["gpp"].(float64)
	if gpp <= 0 {
		t.Errorf("gpp should be computed server-side, got %v", gpp)
	}
	// 湿度降了，对上一次的差值必须为负
	delta, ok := reading["delta_gpp"].(float64)
	if !ok {
		t.Fatalf("delta_gpp missing: %+v", reading)
	}
	if delta >= 0 {
		t.Errorf("delta_gpp = %v, want negative", delta)
	}
	if detail["prior_visit"] == nil {
		t.Error("prior_visit should be present for visit 2")
	}
}

func TestUpdateVisitedAtKeepsNumber(t *testing.T) {
	r, _ := setupVisitRouter(t)
	logID := createLog(t, r, "job-backdate")
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(r, "POST", "/api/v1/drying-logs/"+logID+"/visits",
		saveVisitBody(time.Now()), token)
	visitID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	backdated := time.Now().Add(-72 * time.Hour).UTC().Truncate(time.Second)
	wPatch := testutil.DoRequest(r, "PATCH", "/api/v1/drying-logs/"+logID+"/visits/"+visitID,
		map[string]string{"visited_at": backdated.Format(time.RFC3339)}, token)
	if wPatch.Code != 200 {
		t.Fatalf("patch: %d %s", wPatch.Code, wPatch.Body.String())
	}
	data := testutil.ParseResponse(wPatch)["data"].(map[string]interface{})
	if int(data["visit_number"].(float64)) != 1 {
		t.Errorf("visit_number changed after backdating: %v", data["visit_number"])
	}
}

// setupStructure 建一条 分区→房间→监测点 链，返回roomID与pointID
func setupStructure(t *testing.T, r *gin.Engine, logID string) (string, string) {
	t.Helper()
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(r, "POST", "/api/v1/drying-logs/"+logID+"/chambers",
		map[string]interface{}{"name": "一层", "position": 1}, token)
	if w.Code != 201 {
		t.Fatalf("create chamber: %d %s", w.Code, w.Body.String())
	}
	chamberID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(r, "POST", "/api/v1/drying-logs/"+logID+"/rooms",
		map[string]interface{}{"chamber_id": chamberID, "name": "客厅", "position": 1}, token)
	if w.Code != 201 {
		t.Fatalf("create room: %d %s", w.Code, w.Body.String())
	}
	roomID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	w = testutil.DoRequest(r, "POST", "/api/v1/drying-logs/"+logID+"/ref-points",
		map[string]interface{}{"room_id": roomID, "material_code": "drywall"}, token)
	if w.Code != 201 {
		t.Fatalf("create ref point: %d %s", w.Code, w.Body.String())
	}
	pointID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)
	return roomID, pointID
}

func TestDemolishCreatesVisitWhenMissing(t *testing.T) {
	r, repos := setupVisitRouter(t)
	logID := createLog(t, r, "job-demolish")
	_, pointID := setupStructure(t, r, logID)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(r, "POST",
		fmt.Sprintf("/api/v1/drying-logs/%s/ref-points/%s/demolish", logID, pointID),
		map[string]interface{}{"visited_at": time.Now().Format(time.RFC3339)}, token)
	if w.Code != 200 {
		t.Fatalf("demolish: %d %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	visit := data["visit"].(map[string]interface{})
	if int(visit["visit_number"].(float64)) != 1 {
		t.Errorf("demolition should have created visit 1, got %v", visit["visit_number"])
	}
	point := data["point"].(map[string]interface{})
	if point["demolished_visit_id"] == nil || point["demolished_at"] == nil {
		t.Errorf("demolition fields not set: %+v", point)
	}

	// 撤销拆除无条件清空两个字段
	wUndo := testutil.DoRequest(r, "POST",
		fmt.Sprintf("/api/v1/drying-logs/%s/ref-points/%s/undo-demolish", logID, pointID), nil, token)
	if wUndo.Code != 200 {
		t.Fatalf("undo demolish: %d %s", wUndo.Code, wUndo.Body.String())
	}
	restored, err := repos.Structure.FindRefPoint(context.Background(), logID, pointID)
	if err != nil {
		t.Fatalf("find point: %v", err)
	}
	if restored.DemolishedAt != nil || restored.DemolishedVisitID != nil {
		t.Errorf("undo should clear demolition fields: %+v", restored)
	}
}

func TestRefPointWithReadingsCannotBeDeleted(t *testing.T) {
	r, _ := setupVisitRouter(t)
	logID := createLog(t, r, "job-nodelete")
	_, pointID := setupStructure(t, r, logID)
	token := testutil.DefaultTestToken()

	body := map[string]interface{}{
		"visited_at": time.Now().Format(time.RFC3339),
		"moistures": []map[string]interface{}{
			{"ref_point_id": pointID, "reading_value": 25},
		},
	}
	w := testutil.DoRequest(r, "POST", "/api/v1/drying-logs/"+logID+"/visits", body, token)
	if w.Code != 201 {
		t.Fatalf("save visit: %d %s", w.Code, w.Body.String())
	}

	// 有读数后物理删除必须被拒，只能走拆除流程
	wDel := testutil.DoRequest(r, "DELETE",
		fmt.Sprintf("/api/v1/drying-logs/%s/ref-points/%s", logID, pointID), nil, token)
	if wDel.Code != 409 {
		t.Fatalf("delete should be refused with 409, got %d %s", wDel.Code, wDel.Body.String())
	}
}

func TestDemolishAcceptsEmptyBody(t *testing.T) {
	r, _ := setupVisitRouter(t)
	logID := createLog(t, r, "job-demolish-nobody")
	_, pointID := setupStructure(t, r, logID)
	token := testutil.DefaultTestToken()

	// 字段全部可选，空请求体等同"现在拆除"
	w := testutil.DoRequest(r, "POST",
		fmt.Sprintf("/api/v1/drying-logs/%s/ref-points/%s/demolish", logID, pointID), nil, token)
	if w.Code != 200 {
		t.Fatalf("bare demolish: %d %s", w.Code, w.Body.String())
	}
	data := testutil.ParseResponse(w)["data"].(map[string]interface{})
	if data["visit"] == nil {
		t.Fatal("demolition should have created a visit")
	}
}

func TestAddNoteToPersistedVisit(t *testing.T) {
	r, _ := setupVisitRouter(t)
	logID := createLog(t, r, "job-latenote")
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(r, "POST", "/api/v1/drying-logs/"+logID+"/visits",
		saveVisitBody(time.Now()), token)
	if w.Code != 201 {
		t.Fatalf("save visit: %d %s", w.Code, w.Body.String())
	}
	visitID := testutil.ParseResponse(w)["data"].(map[string]interface{})["id"].(string)

	wNote := testutil.DoRequest(r, "POST",
		fmt.Sprintf("/api/v1/drying-logs/%s/visits/%s/notes", logID, visitID),
		map[string]interface{}{"content": "业主反馈墙角仍有潮味", "photos": []string{"corner.jpg"}}, token)
	if wNote.Code != 201 {
		t.Fatalf("add note: %d %s", wNote.Code, wNote.Body.String())
	}

	// 补挂的备注要出现在巡检详情里
	wDetail := testutil.DoRequest(r, "GET",
		fmt.Sprintf("/api/v1/drying-logs/%s/visits/%s", logID, visitID), nil, token)
	if wDetail.Code != 200 {
		t.Fatalf("detail: %d %s", wDetail.Code, wDetail.Body.String())
	}
	detail := testutil.ParseResponse(wDetail)["data"].(map[string]interface{})
	notes, ok := detail["notes"].([]interface{})
	if !ok || len(notes) != 1 {
		t.Fatalf("expected 1 note in detail, got %v", detail["notes"])
	}
	note := notes[0].(map[string]interface{})
	if note["content"] != "业主反馈墙角仍有潮味" {
		t.Errorf("note content = %v", note["content"])
	}
}

func TestListRefPointsRoute(t *testing.T) {
	r, _ := setupVisitRouter(t)
	logID := createLog(t, r, "job-pointlist")
	_, pointID := setupStructure(t, r, logID)
	token := testutil.DefaultTestToken()

	w := testutil.DoRequest(r, "GET", "/api/v1/drying-logs/"+logID+"/ref-points", nil, token)
	if w.Code != 200 {
		t.Fatalf("list ref points: %d %s", w.Code, w.Body.String())
	}
	points, ok := testutil.ParseResponse(w)["data"].([]interface{})
	if !ok || len(points) != 1 {
		t.Fatalf("expected 1 ref point, got %v", testutil.ParseResponse(w)["data"])
	}
	if points[0].(map[string]interface{})["id"] != pointID {
		t.Errorf("point id mismatch: %v", points[0])
	}
}
