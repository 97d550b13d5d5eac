package uploader

import (
	"context"

	"github.com/apivideo/go-upstream/internal/core/domain"
	"github.com/apivideo/go-upstream/internal/core/port"
	"github.com/stretchr/testify/mock"
)

// MockUploadClient is a mock implementation of port.UploadClient
type MockUploadClient struct {
	mock.Mock
}

// NewMockUploadClient creates a new MockUploadClient
func NewMockUploadClient() *MockUploadClient {
	return &MockUploadClient{}
}

func (m *MockUploadClient) NewVideoSession(videoID string) port.Uploader {
	args := m.Called(videoID)
	return args.Get(0).(port.Uploader)
}

func (m *MockUploadClient) NewTokenSession(token, videoID string) port.Uploader {
	args := m.Called(token, videoID)
	return args.Get(0).(port.Uploader)
}

// MockUploader is a mock implementation of port.Uploader
type MockUploader struct {
	mock.Mock
}

// NewMockUploader creates a new MockUploader
func NewMockUploader() *MockUploader {
	return &MockUploader{}
}

func (m *MockUploader) UploadPart(ctx context.Context, filePath string, partIndex int, progress port.ProgressFunc) (*domain.Video, error) {
	args := m.Called(ctx, filePath, partIndex, progress)
	video, _ := args.Get(0).(*domain.Video)
	return video, args.Error(1)
}

func (m *MockUploader) UploadLastPart(ctx context.Context, filePath string, partIndex int, progress port.ProgressFunc) (*domain.Video, error) {
	args := m.Called(ctx, filePath, partIndex, progress)
	video, _ := args.Get(0).(*domain.Video)
	return video, args.Error(1)
}
