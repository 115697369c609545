package reliability

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

const (
	archivePrefix = "intraday-backup-"
	archiveStamp  = "2006-01-02-150405"

	// minKeepRemote archives survive rotation regardless of age.
	minKeepRemote = 3
)

// ObjectStore is the slice of S3Client the remote backup service uses.
type ObjectStore interface {
	Upload(ctx context.Context, key string, body io.Reader) error
	List(ctx context.Context, prefix string) ([]StoredObject, error)
	Delete(ctx context.Context, key string) error
}

// BackupManifest travels inside each archive as manifest.json so a restore
// can verify what it extracted.
type BackupManifest struct {
	CreatedAt time.Time          `json:"created_at"`
	SourceSet string             `json:"source_set"`
	Databases []DatabaseSnapshot `json:"databases"`
}

// DatabaseSnapshot records one database file inside an archive.
type DatabaseSnapshot struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// RemoteBackupService mirrors the latest local backup set to an
// S3-compatible store, one checksummed tar.gz archive per upload. A nil
// store leaves the service unconfigured and the upload work types idle.
type RemoteBackupService struct {
	store         ObjectStore
	backups       *BackupService
	retentionDays int
	log           zerolog.Logger
}

// NewRemoteBackupService wires the remote mirror on top of the local backup
// service. retentionDays <= 0 keeps remote archives forever.
func NewRemoteBackupService(store ObjectStore, backups *BackupService, retentionDays int, log zerolog.Logger) *RemoteBackupService {
	return &RemoteBackupService{
		store:         store,
		backups:       backups,
		retentionDays: retentionDays,
		log:           log.With().Str("service", "remote_backup").Logger(),
	}
}

// Configured reports whether a remote store is attached.
func (s *RemoteBackupService) Configured() bool {
	return s.store != nil
}

// UploadBackup archives the latest local backup set and uploads it under a
// timestamped key.
func (s *RemoteBackupService) UploadBackup(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("no remote backup store configured")
	}

	setDir, ok := s.backups.LatestSet()
	if !ok {
		return fmt.Errorf("no local backup set to upload")
	}

	startTime := time.Now()
	key := archivePrefix + startTime.Format(archiveStamp) + ".tar.gz"

	archivePath, manifest, err := s.buildArchive(setDir)
	if err != nil {
		return fmt.Errorf("building archive: %w", err)
	}
	defer os.Remove(archivePath)

	info, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("stat archive: %w", err)
	}

	archive, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("opening archive: %w", err)
	}
	defer archive.Close()

	if err := s.store.Upload(ctx, key, archive); err != nil {
		return fmt.Errorf("uploading archive: %w", err)
	}

	s.log.Info().
		Str("key", key).
		Str("source_set", manifest.SourceSet).
		Int("databases", len(manifest.Databases)).
		Int64("size_bytes", info.Size()).
		Dur("duration_ms", time.Since(startTime)).
		Msg("Remote backup uploaded")

	return nil
}

// RotateBackups deletes remote archives past the retention horizon. The
// newest minKeepRemote archives always survive rotation.
func (s *RemoteBackupService) RotateBackups(ctx context.Context) error {
	if s.store == nil {
		return fmt.Errorf("no remote backup store configured")
	}

	objects, err := s.store.List(ctx, archivePrefix)
	if err != nil {
		return fmt.Errorf("listing remote backups: %w", err)
	}

	type remoteArchive struct {
		key     string
		created time.Time
	}

	archives := make([]remoteArchive, 0, len(objects))
	for _, obj := range objects {
		created, ok := parseArchiveStamp(obj.Key)
		if !ok {
			s.log.Warn().Str("key", obj.Key).Msg("Skipping object with unparseable name")
			continue
		}
		archives = append(archives, remoteArchive{key: obj.Key, created: created})
	}

	if len(archives) <= minKeepRemote {
		s.log.Debug().Int("count", len(archives)).Msg("Too few remote backups to rotate")
		return nil
	}
	if s.retentionDays <= 0 {
		return nil
	}

	// Newest first, so the keep window is a slice prefix.
	sort.Slice(archives, func(i, j int) bool {
		return archives[i].created.After(archives[j].created)
	})

	cutoff := time.Now().AddDate(0, 0, -s.retentionDays)
	deleted := 0

	for _, archive := range archives[minKeepRemote:] {
		if !archive.created.Before(cutoff) {
			continue
		}

		if err := s.store.Delete(ctx, archive.key); err != nil {
			s.log.Error().Err(err).Str("key", archive.key).Msg("Could not delete old remote backup")
			continue
		}

		s.log.Info().
			Str("key", archive.key).
			Time("created", archive.created).
			Msg("Deleted old remote backup")
		deleted++
	}

	s.log.Info().
		Int("deleted", deleted).
		Int("remaining", len(archives)-deleted).
		Msg("Remote backup rotation completed")

	return nil
}

// buildArchive packs the set's database files and a manifest into a
// temporary tar.gz and returns its path. The caller removes the file.
func (s *RemoteBackupService) buildArchive(setDir string) (string, BackupManifest, error) {
	manifest := BackupManifest{
		CreatedAt: time.Now().UTC(),
		SourceSet: filepath.Base(setDir),
	}

	entries, err := os.ReadDir(setDir)
	if err != nil {
		return "", manifest, fmt.Errorf("reading backup set: %w", err)
	}

	var dbFiles []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".db") {
			continue
		}
		dbFiles = append(dbFiles, entry.Name())
	}
	if len(dbFiles) == 0 {
		return "", manifest, fmt.Errorf("backup set %s holds no databases", manifest.SourceSet)
	}
	sort.Strings(dbFiles)

	for _, name := range dbFiles {
		path := filepath.Join(setDir, name)

		info, err := os.Stat(path)
		if err != nil {
			return "", manifest, fmt.Errorf("stat %s: %w", name, err)
		}

		checksum, err := checksumFile(path)
		if err != nil {
			return "", manifest, fmt.Errorf("checksumming %s: %w", name, err)
		}

		manifest.Databases = append(manifest.Databases, DatabaseSnapshot{
			Name:      strings.TrimSuffix(name, ".db"),
			SizeBytes: info.Size(),
			Checksum:  checksum,
		})
	}

	tmp, err := os.CreateTemp("", "intraday-backup-*.tar.gz")
	if err != nil {
		return "", manifest, fmt.Errorf("creating archive file: %w", err)
	}

	if err := writeArchive(tmp, setDir, dbFiles, manifest); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return "", manifest, err
	}

	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return "", manifest, fmt.Errorf("closing archive: %w", err)
	}

	return tmp.Name(), manifest, nil
}

// writeArchive streams the database files and the manifest through tar+gzip
// into w.
func writeArchive(w io.Writer, setDir string, dbFiles []string, manifest BackupManifest) error {
	gz := gzip.NewWriter(w)
	tw := tar.NewWriter(gz)

	for _, name := range dbFiles {
		if err := addTarFile(tw, filepath.Join(setDir, name), name); err != nil {
			return fmt.Errorf("adding %s to archive: %w", name, err)
		}
	}

	encoded, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding manifest: %w", err)
	}

	header := &tar.Header{
		Name:    "manifest.json",
		Size:    int64(len(encoded)),
		Mode:    0644,
		ModTime: manifest.CreatedAt,
	}
	if err := tw.WriteHeader(header); err != nil {
		return fmt.Errorf("writing manifest header: %w", err)
	}
	if _, err := tw.Write(encoded); err != nil {
		return fmt.Errorf("writing manifest: %w", err)
	}

	if err := tw.Close(); err != nil {
		return fmt.Errorf("closing tar stream: %w", err)
	}

	return gz.Close()
}

// addTarFile copies one file into the tar stream under nameInArchive.
func addTarFile(tw *tar.Writer, path, nameInArchive string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return err
	}

	header := &tar.Header{
		Name:    nameInArchive,
		Size:    info.Size(),
		Mode:    int64(info.Mode()),
		ModTime: info.ModTime(),
	}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}

	_, err = io.Copy(tw, file)

	return err
}

// checksumFile returns the sha256 digest of a file in the manifest's
// "sha256:<hex>" form.
func checksumFile(path string) (string, error) {
	file, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer file.Close()

	hash := sha256.New()
	if _, err := io.Copy(hash, file); err != nil {
		return "", err
	}

	return fmt.Sprintf("sha256:%x", hash.Sum(nil)), nil
}

// parseArchiveStamp recovers the creation time embedded in an archive key.
func parseArchiveStamp(key string) (time.Time, bool) {
	if !strings.HasPrefix(key, archivePrefix) || !strings.HasSuffix(key, ".tar.gz") {
		return time.Time{}, false
	}

	stamp := strings.TrimSuffix(strings.TrimPrefix(key, archivePrefix), ".tar.gz")

	created, err := time.Parse(archiveStamp, stamp)
	if err != nil {
		return time.Time{}, false
	}

	return created, true
}
