package domain

import (
	"github.com/partforge/partforge-backend/internal/domain/bom"
	"github.com/partforge/partforge-backend/internal/domain/docs"
	"github.com/partforge/partforge-backend/internal/domain/jobs"
)

type Part = bom.Part
type ParentChildLink = bom.ParentChildLink
type LocationExtension = bom.LocationExtension

type Document = docs.Document
type DocumentFile = docs.DocumentFile

type DecompositionRun = jobs.DecompositionRun
type DecompositionAction = jobs.DecompositionAction

const (
	FileKindNative = docs.FileKindNative
	FileKindStep   = docs.FileKindStep
)
