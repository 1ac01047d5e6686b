package controllers

import (
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"Copilot/middleware"
	"Copilot/pkg/apperr"
	"Copilot/pkg/chat"
	"Copilot/pkg/extract"
)

const filesField = "files"

type chatForm struct {
	ConversationID uint   `form:"conversation_id" json:"conversation_id" binding:"required,gt=0"`
	Message        string `form:"message" json:"message" binding:"required,min=1,max=10000"`
	Domain         string `form:"domain" json:"domain" binding:"max=32"`
}

// Chat handles POST /chat. It accepts multipart forms with zero or more
// "files" parts, plain url-encoded forms and JSON bodies.
func Chat(svc *chat.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		uid, ok := middleware.UserID(c)
		if !ok {
			c.JSON(http.StatusUnauthorized, gin.H{"msg": "unauthenticated"})
			return
		}

		var form chatForm
		if err := c.ShouldBind(&form); err != nil {
			respondError(c, bindError(err))
			return
		}

		uploads, closeAll, err := openUploads(c)
		if err != nil {
			respondError(c, err)
			return
		}
		defer closeAll()

		res, err := svc.Handle(c.Request.Context(), chat.Request{
			UserID:         uid,
			ConversationID: form.ConversationID,
			Message:        form.Message,
			Domain:         form.Domain,
			Files:          uploads,
		})
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

// openUploads opens every file part of a multipart request. Requests that
// are not multipart have no uploads.
func openUploads(c *gin.Context) ([]extract.Upload, func(), error) {
	noop := func() {}
	if c.ContentType() != gin.MIMEMultipartPOSTForm {
		return nil, noop, nil
	}
	form, err := c.MultipartForm()
	if err != nil {
		return nil, noop, apperr.Wrap(apperr.KindValidation, err, "invalid multipart form")
	}
	headers := form.File[filesField]
	if len(headers) == 0 {
		return nil, noop, nil
	}

	opened := make([]multipart.File, 0, len(headers))
	closeAll := func() {
		for _, f := range opened {
			_ = f.Close()
		}
	}
	uploads := make([]extract.Upload, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			closeAll()
			return nil, noop, apperr.Internal(err, "failed to read upload %s", fh.Filename)
		}
		opened = append(opened, f)
		uploads = append(uploads, extract.Upload{
			Filename:    fh.Filename,
			Size:        fh.Size,
			ContentType: fh.Header.Get("Content-Type"),
			Body:        f,
		})
	}
	return uploads, closeAll, nil
}
