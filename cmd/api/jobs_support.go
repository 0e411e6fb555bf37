package main

import (
	"fmt"
	"net/http"
	"net/url"
	"os"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/yourusername/sheet-forge/internal/jobs"
	"github.com/yourusername/sheet-forge/internal/storage"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

// jobStatusHandler は GET /api/jobs/:id のハンドラーを返します。
// 未知のIDは失敗したジョブとは別の「存在しない」応答になります。
func jobStatusHandler(manager *jobs.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		record := manager.GetRecord(jobID)
		if record == nil {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_NOT_FOUND",
				"message": "指定されたジョブは存在しません。",
			})
			return
		}

		payload := gin.H{
			"jobId":  record.JobID,
			"status": record.Status,
			"progress": gin.H{
				"percent": record.Progress.Percent,
				"stage":   record.Progress.Stage,
			},
			"updatedAt": record.UpdatedAt,
		}
		if record.DownloadURL != "" {
			payload["downloadUrl"] = record.DownloadURL
		}
		if record.Error != nil {
			payload["error"] = record.Error
		}

		c.JSON(http.StatusOK, payload)
	}
}

// jobDownloadHandler は GET /api/jobs/:id/download のハンドラーを返します。
func jobDownloadHandler(manager *jobs.Manager, store *storage.Local) gin.HandlerFunc {
	return func(c *gin.Context) {
		jobID := c.Param("id")
		if strings.TrimSpace(jobID) == "" {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "jobId を指定してください。",
			})
			return
		}

		record := manager.GetRecord(jobID)
		if record == nil || record.Status != jobs.StatusSucceeded || record.StoredName == "" {
			c.JSON(http.StatusNotFound, gin.H{
				"code":    "JOB_RESULT_NOT_FOUND",
				"message": "ジョブの成果物が見つかりませんでした。",
			})
			return
		}

		file, info, err := store.Open(record.StoredName)
		if err != nil {
			if os.IsNotExist(err) {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "JOB_RESULT_NOT_FOUND",
					"message": "ジョブの成果物が見つかりませんでした。",
				})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":    "INTERNAL_ERROR",
				"message": "ジョブの成果物取得に失敗しました。",
			})
			return
		}
		defer file.Close()

		downloadName := record.DownloadName
		if downloadName == "" {
			downloadName = record.StoredName
		}

		encodedName := url.PathEscape(downloadName)
		c.Header("Content-Type", xlsxContentType)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", downloadName, encodedName))
		c.Header("Cache-Control", "no-store")
		c.Header("X-Job-Id", record.JobID)
		c.DataFromReader(http.StatusOK, info.Size(), xlsxContentType, file, nil)
	}
}

// generatedFileHandler は GET /api/generated/:name のハンドラーを返します。
// 参照はストレージ側で検証され、ディレクトリ外参照は拒否されます。
func generatedFileHandler(store *storage.Local) gin.HandlerFunc {
	return func(c *gin.Context) {
		name := c.Param("name")

		file, info, err := store.Open(name)
		if err != nil {
			if os.IsNotExist(err) {
				c.JSON(http.StatusNotFound, gin.H{
					"code":    "FILE_NOT_FOUND",
					"message": "指定されたファイルは存在しません。",
				})
				return
			}
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "ファイル名が正しくありません。",
			})
			return
		}
		defer file.Close()

		encodedName := url.PathEscape(name)
		c.Header("Content-Type", xlsxContentType)
		c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"; filename*=UTF-8''%s", name, encodedName))
		c.Header("Cache-Control", "no-store")
		c.DataFromReader(http.StatusOK, info.Size(), xlsxContentType, file, nil)
	}
}
