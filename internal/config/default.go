package config

// DefaultFile is written on first run and opened by `voicestudio config`.
const DefaultFile = `# Quality-controlled generation
quality:
  # candidates generated before retries (1-20)
  num_candidates: 3
  # overall score a candidate must reach (0.0-1.0)
  threshold: 0.85
  # total candidate budget including the initial pass
  max_retries: 5
  # archive non-selected candidates instead of deleting them
  keep_candidates: false
  # voice tried by the fourth retry perturbation
  alternative_voice: ""
  # relative metric weights; missing metrics use the defaults
  weights:
    transcription_accuracy: 0.40
    audio_clarity: 0.25
    technical_quality: 0.20
    speech_naturalness: 0.15
    emotional_consistency: 0.10

# Speech-to-text used to score transcription accuracy
validator:
  # cli, http or none
  backend: "cli"
  model: "base"
  program: "whisper"
  # url: "http://localhost:9000"
  timeout: "30s"
  language: "en"

# Text-to-speech backend
tts:
  # command, http or tone
  backend: "tone"
  # command: "piper"
  # args: ["--model", "en_US-lessac-medium.onnx", "--output_file", "{output}", "--length_scale", "{length_scale}"]
  # url: "http://localhost:5002/synthesize"
  requests_per_minute: 0
  timeout: "2m"
  serialize: false
  forward_extra: false
  # reuse audio for repeated lines with identical settings; 0 disables
  cache_mb: 64

# Inner voice effects
effects:
  tool: "ffmpeg"
  # presets_file: "~/.config/voicestudio/presets.yaml"
  timeout: "1m"

# Batch orchestration
batch:
  # 0 uses min(8, CPUs)
  workers: 0
  save_reports: true
  concatenate: true
  # distinct or similarity
  match_policy: "distinct"
  match_threshold: 0.7
  default_inner_voice: "light"

audio:
  sample_rate: 22050
  gap: "300ms"
  decoder: "ffmpeg"

archive:
  # dir: "~/.cache/voicestudio/candidates"
  capacity_mb: 500
  compression_level: 2

metrics:
  # serve prometheus metrics during long runs, e.g. ":9090"
  addr: ""
`
