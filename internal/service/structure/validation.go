package structure

import (
	"errors"
	"fmt"
	"strings"

	"filetree/internal/config"
	"filetree/internal/domain"
	models "filetree/internal/domain/models/structure"
	svc "filetree/internal/domain/services/structure"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// validateCreateRequest checks name, type and the file-requires-parent rule
func validateCreateRequest(req *svc.CreateNodeRequest) error {
	err := validation.ValidateStruct(req,
		validation.Field(&req.Name, validation.By(validateNodeName)),
		validation.Field(&req.Type, validation.Required, validation.By(validateNodeType)),
		validation.Field(&req.ParentID,
			validation.When(req.Type == models.NodeTypeFile,
				validation.Required.Error("file must be inside a folder"),
			),
		),
		validation.Field(&req.FilePath,
			validation.When(req.Type == models.NodeTypeFolder,
				validation.Nil.Error("folders cannot have a file path"),
			),
		),
	)
	return asValidationError(err)
}

// validateUpdateRequest checks only the fields present
func validateUpdateRequest(req *svc.UpdateNodeRequest) error {
	err := validation.ValidateStruct(req,
		validation.Field(&req.Name, validation.When(req.Name != nil, validation.By(validateNodeName))),
		validation.Field(&req.Type, validation.When(req.Type != nil, validation.By(validateNodeType))),
	)
	return asValidationError(err)
}

func validateUploadRequest(req *svc.UploadFileRequest, maxBytes int64) error {
	err := validation.ValidateStruct(req,
		validation.Field(&req.ParentID, validation.Required.Error("file must be inside a folder")),
		validation.Field(&req.Name, validation.By(validateNodeName)),
		validation.Field(&req.Size, validation.Min(int64(0)), validation.Max(maxBytes)),
		validation.Field(&req.Body, validation.NotNil.Error("no file uploaded")),
	)
	return asValidationError(err)
}

// validateNodeName accepts string and *string
func validateNodeName(value interface{}) error {
	var name string
	switch v := value.(type) {
	case string:
		name = v
	case *string:
		if v == nil {
			return nil
		}
		name = *v
	default:
		return fmt.Errorf("name must be a string")
	}

	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("name cannot be empty")
	}
	if len([]rune(name)) > config.MaxNodeNameLength {
		return fmt.Errorf("name must be at most %d characters", config.MaxNodeNameLength)
	}
	return nil
}

func validateNodeType(value interface{}) error {
	var t models.NodeType
	switch v := value.(type) {
	case models.NodeType:
		t = v
	case *models.NodeType:
		if v == nil {
			return nil
		}
		t = *v
	default:
		return fmt.Errorf("type must be a string")
	}

	if !t.Valid() {
		return fmt.Errorf("type must be 'file' or 'folder'")
	}
	return nil
}

// asValidationError converts ozzo's field errors into the domain kind
func asValidationError(err error) error {
	if err == nil {
		return nil
	}
	var internal validation.InternalError
	if errors.As(err, &internal) {
		return fmt.Errorf("validate request: %w", err)
	}
	return &domain.ValidationError{Message: err.Error()}
}

// normalizeParent maps an empty parent id to root level
func normalizeParent(id *string) *string {
	if id == nil || strings.TrimSpace(*id) == "" {
		return nil
	}
	return id
}
