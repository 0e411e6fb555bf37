package excel

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// JobSubmitter はジョブを受け付けて即座にIDを返すサービスが実装します。
type JobSubmitter interface {
	Submit(ctx context.Context, req *BuildRequest) (string, error)
}

// BuildHandler は POST /api/excel/build のハンドラーを返します。
// リクエスト形状の検証のみ同期で行い、生成処理はバックグラウンドで実行されます。
func BuildHandler(submitter JobSubmitter) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req BuildRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":    "INVALID_INPUT",
				"message": "JSON形式のリクエスト本文を送信してください。",
			})
			return
		}

		jobID, err := submitter.Submit(c.Request.Context(), &req)
		if err != nil {
			respondWithError(c, err)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"jobId":  jobID,
			"status": "queued",
			"progress": gin.H{
				"percent": 0,
			},
		})
	}
}

func respondWithError(c *gin.Context, err error) {
	var apiErr *Error
	switch {
	case errors.As(err, &apiErr):
		status := http.StatusBadRequest
		if apiErr.Code == "LIMIT_EXCEEDED" {
			status = http.StatusRequestEntityTooLarge
		}
		c.JSON(status, gin.H{
			"code":    apiErr.Code,
			"message": apiErr.Message,
		})
	case errors.Is(err, context.Canceled):
		c.JSON(http.StatusRequestTimeout, gin.H{
			"code":    "REQUEST_CANCELED",
			"message": "リクエストがキャンセルされました。",
		})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{
			"code":    "INTERNAL_ERROR",
			"message": "サーバー内部でエラーが発生しました。",
		})
	}
}
