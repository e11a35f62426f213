package fileio

import (
	"go_secure_send/constants"

	"github.com/rs/zerolog"
)

// DiskStorage keeps the registration source and the credential as local files
type DiskStorage struct {
	RegistrationPath string
	CredentialPath   string
	ChunkSize        int
	log              zerolog.Logger
}

// NewDiskStorage returns storage over the given paths. Empty paths fall back
// to the default file names in the working directory.
func NewDiskStorage(registrationPath, credentialPath string, log zerolog.Logger) *DiskStorage {
	if registrationPath == "" {
		registrationPath = constants.REGISTRATION_FILE
	}
	if credentialPath == "" {
		credentialPath = constants.CREDENTIAL_FILE
	}
	return &DiskStorage{
		RegistrationPath: registrationPath,
		CredentialPath:   credentialPath,
		ChunkSize:        64 * 1024,
		log:              log.With().Str("component", "storage").Logger(),
	}
}

func (s *DiskStorage) LoadRegistration() (Registration, error) {
	reg, err := ReadRegistration(s.RegistrationPath)
	if err != nil {
		return Registration{}, err
	}
	s.log.Debug().Str("path", s.RegistrationPath).Str("endpoint", reg.Endpoint()).
		Str("user", reg.User).Str("file", reg.FilePath).Msg("registration loaded")
	return reg, nil
}

func (s *DiskStorage) LoadCredential() (Credential, error) {
	cred, err := ReadCredential(s.CredentialPath)
	if err != nil {
		return Credential{}, err
	}
	s.log.Debug().Str("path", s.CredentialPath).Str("client_id", cred.ClientID.String()).Msg("credential loaded")
	return cred, nil
}

func (s *DiskStorage) SaveCredential(cred Credential) error {
	if err := WriteCredential(s.CredentialPath, cred); err != nil {
		return err
	}
	s.log.Info().Str("path", s.CredentialPath).Str("client_id", cred.ClientID.String()).Msg("credential saved")
	return nil
}

func (s *DiskStorage) DeleteCredential() error {
	if err := RemoveCredential(s.CredentialPath); err != nil {
		return err
	}
	s.log.Info().Str("path", s.CredentialPath).Msg("credential deleted")
	return nil
}

// ReadFileBytes reads the whole source file into memory
func (s *DiskStorage) ReadFileBytes(path string) ([]byte, error) {
	reader, err := OpenBuffered(path, s.ChunkSize, 4)
	if err != nil {
		return nil, err
	}
	return reader.ReadAll()
}

func (s *DiskStorage) Checksum(path string) (uint32, error) {
	return GetFileChecksumCksum(path)
}
